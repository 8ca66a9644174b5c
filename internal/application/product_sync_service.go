package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crm-visma-sync-layer/internal/application/mapping"
	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/metrics"
	"crm-visma-sync-layer/internal/ports"
)

// ProductSyncService propagates the price list between the CRM and the
// Visma.net inventory. On top of the bidirectional record sync it runs
// an optional price pass that pushes base prices for already-linked
// items without touching any other field.
type ProductSyncService struct {
	products           ports.ProductRepository
	state              ports.SyncStateRepository
	visma              ports.VismaClient
	retry              RetryConfig
	createMissingLocal bool
	logger             zerolog.Logger
	metrics            *metrics.Metrics
}

// NewProductSyncService wires a product sync service.
func NewProductSyncService(
	products ports.ProductRepository,
	state ports.SyncStateRepository,
	visma ports.VismaClient,
	retry RetryConfig,
	createMissingLocal bool,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *ProductSyncService {
	return &ProductSyncService{
		products:           products,
		state:              state,
		visma:              visma,
		retry:              retry,
		createMissingLocal: createMissingLocal,
		logger:             logger.With().Str("service", "product_sync").Logger(),
		metrics:            m,
	}
}

type productRun struct {
	summary   *domain.SyncRunSummary
	mappings  map[string]string
	remoteIdx *RemoteItemIndex
	localIdx  *LocalProductIndex
	taken     map[string]bool
	conflicts int64
	// conflictedRemote marks pairs already flagged in the push pass so
	// the pull pass does not record the same conflict twice.
	conflictedRemote map[string]bool
	opts             RunOptions
}

// Run executes one product sync pass. The returned summary is valid
// even when err is non-nil.
func (s *ProductSyncService) Run(ctx context.Context, opts RunOptions) (*domain.SyncRunSummary, error) {
	started := time.Now()
	summary := &domain.SyncRunSummary{
		Started:    started,
		Direction:  opts.direction(),
		EntityType: domain.EntityProduct,
	}

	state, err := s.state.Load(ctx, domain.EntityProduct)
	if err != nil {
		s.observeRun("failed")
		return summary, fmt.Errorf("load sync state: %w", err)
	}
	locals, err := s.products.ListActive(ctx)
	if err != nil {
		s.observeRun("failed")
		return summary, fmt.Errorf("list crm products: %w", err)
	}
	remotes, err := s.visma.ListItems(ctx)
	if err != nil {
		s.observeRun("failed")
		return summary, fmt.Errorf("list visma items: %w", err)
	}

	taken := make(map[string]bool, len(remotes))
	for i := range remotes {
		taken[remotes[i].InventoryID] = true
	}
	run := &productRun{
		summary:          summary,
		mappings:         cloneMappings(state.Mappings),
		remoteIdx:        NewRemoteItemIndex(remotes),
		localIdx:         NewLocalProductIndex(locals),
		taken:            taken,
		conflictedRemote: map[string]bool{},
		opts:             opts,
	}

	s.logger.Info().
		Str("direction", string(summary.Direction)).
		Int("crm_products", len(locals)).
		Int("visma_items", len(remotes)).
		Bool("sync_prices", opts.SyncPrices).
		Msg("product sync started")

	var runErr error
	if summary.Direction != domain.DirectionVismaToCRM {
		runErr = s.pushToVisma(ctx, locals, run)
	}
	if runErr == nil && summary.Direction != domain.DirectionCRMToVisma {
		runErr = s.pullFromVisma(ctx, remotes, run)
	}
	if runErr == nil && opts.SyncPrices && summary.Direction != domain.DirectionVismaToCRM {
		runErr = s.syncPrices(ctx, locals, run)
	}

	summary.Duration = time.Since(started)
	s.persistRunState(ctx, started, run)

	outcome := "ok"
	if runErr != nil {
		outcome = "failed"
	} else if summary.TotalErrors() > 0 {
		outcome = "partial"
	}
	s.observeRun(outcome)
	s.logger.Info().
		Int("created", summary.CRMToVisma.Created+summary.VismaToCRM.Created).
		Int("updated", summary.CRMToVisma.Updated+summary.VismaToCRM.Updated).
		Int("price_updates", summary.PriceUpdates).
		Int("errors", summary.TotalErrors()).
		Dur("duration", summary.Duration).
		Str("outcome", outcome).
		Msg("product sync finished")
	return summary, runErr
}

func (s *ProductSyncService) pushToVisma(ctx context.Context, locals []*domain.Product, run *productRun) error {
	for _, product := range locals {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncLocalProduct(ctx, product, run); err != nil {
			if recordOutcome(ctx, s.state, s.logger, domain.EntityProduct, domain.DirectionCRMToVisma,
				product.ID, product.Name, err, run.opts.Events) {
				run.conflicts++
			} else {
				run.summary.CRMToVisma.Errors++
			}
			s.observeRecord("crm_to_visma", "error")
		}
	}
	return nil
}

func (s *ProductSyncService) syncLocalProduct(ctx context.Context, product *domain.Product, run *productRun) error {
	if err := validateProduct(product); err != nil {
		return err
	}

	match := run.remoteIdx.FindMatch(product, run.mappings)
	if match == nil {
		return s.createRemoteItem(ctx, product, run)
	}
	// Persist the identity as soon as the match is established so the
	// next run resolves it through the stored mapping.
	s.attachRemoteIdentity(ctx, product, match.InventoryID, run)

	switch decideUpdate(product.LastModified, match.LastModifiedDateTime, productDiffers(product, match)) {
	case decisionSkip:
		run.opts.Events.emit(EventSkipped, domain.EntityProduct, domain.DirectionCRMToVisma, product.ID, "")
		s.observeRecord("crm_to_visma", "skipped")
	case decisionConflict:
		run.conflictedRemote[match.InventoryID] = true
		return &domain.ConflictError{
			EntityID: product.ID,
			Message:  fmt.Sprintf("product %q modified on both sides at %s", product.Name, product.LastModified.Format(time.RFC3339)),
		}
	case decisionUpdate:
		mapped := mapping.ProductToVisma(product)
		mapped.InventoryID = match.InventoryID
		var updated *domain.VismaItem
		err := withRetry(ctx, s.retry, func(ctx context.Context) error {
			var e error
			updated, e = s.visma.UpdateItem(ctx, match.InventoryID, mapped)
			return e
		})
		if err != nil {
			return fmt.Errorf("update visma item %s: %w", match.InventoryID, err)
		}
		*match = *updated
		run.summary.CRMToVisma.Updated++
		s.observeRecord("crm_to_visma", "updated")
		run.opts.Events.emit(EventUpdated, domain.EntityProduct, domain.DirectionCRMToVisma, product.ID, "")
	}
	return nil
}

func (s *ProductSyncService) createRemoteItem(ctx context.Context, product *domain.Product, run *productRun) error {
	mapped := mapping.ProductToVisma(product)
	if mapped.InventoryID == "" {
		mapped.InventoryID = mapping.GenerateInventoryID(product.Name, run.taken)
	}
	var created *domain.VismaItem
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		var e error
		created, e = s.visma.CreateItem(ctx, mapped)
		return e
	})
	if err != nil {
		return fmt.Errorf("create visma item for %s: %w", product.ID, err)
	}
	run.taken[created.InventoryID] = true
	run.remoteIdx.Add(created)
	run.summary.CRMToVisma.Created++
	s.observeRecord("crm_to_visma", "created")
	run.opts.Events.emit(EventCreated, domain.EntityProduct, domain.DirectionCRMToVisma, product.ID, created.InventoryID)
	s.attachRemoteIdentity(ctx, product, created.InventoryID, run)
	return nil
}

func (s *ProductSyncService) attachRemoteIdentity(ctx context.Context, product *domain.Product, inventoryID string, run *productRun) {
	if run.mappings[product.ID] != inventoryID {
		run.mappings[product.ID] = inventoryID
		if err := s.state.SaveMapping(ctx, domain.EntityProduct, product.ID, inventoryID); err != nil {
			s.logger.Error().Err(err).Str("product_id", product.ID).Msg("failed to save identity mapping")
		}
	}
	if product.VismaInventoryID != inventoryID {
		product.VismaInventoryID = inventoryID
		if err := s.products.SetVismaInventoryID(ctx, product.ID, inventoryID); err != nil {
			s.logger.Error().Err(err).Str("product_id", product.ID).Msg("failed to set visma back-reference")
		}
	}
}

func (s *ProductSyncService) pullFromVisma(ctx context.Context, remotes []domain.VismaItem, run *productRun) error {
	reversed := reverseMappings(run.mappings)
	for i := range remotes {
		if err := ctx.Err(); err != nil {
			return err
		}
		remote := &remotes[i]
		if err := s.syncRemoteItem(ctx, remote, reversed, run); err != nil {
			if recordOutcome(ctx, s.state, s.logger, domain.EntityProduct, domain.DirectionVismaToCRM,
				remote.InventoryID, remote.Description, err, run.opts.Events) {
				run.conflicts++
			} else {
				run.summary.VismaToCRM.Errors++
			}
			s.observeRecord("visma_to_crm", "error")
		}
	}
	return nil
}

func (s *ProductSyncService) syncRemoteItem(ctx context.Context, remote *domain.VismaItem, reversed map[string]string, run *productRun) error {
	if run.conflictedRemote[remote.InventoryID] {
		return nil
	}
	local := run.localIdx.FindMatch(remote, reversed)
	if local == nil {
		if !s.createMissingLocal {
			run.opts.Events.emit(EventSkipped, domain.EntityProduct, domain.DirectionVismaToCRM,
				remote.InventoryID, "no crm counterpart, local creation disabled")
			s.observeRecord("visma_to_crm", "skipped")
			return nil
		}
		created := mapping.ProductFromVisma(remote)
		created.ID = "visma_" + remote.InventoryID
		if err := s.products.Upsert(ctx, created); err != nil {
			return fmt.Errorf("create crm product for %s: %w", remote.InventoryID, err)
		}
		run.mappings[created.ID] = remote.InventoryID
		reversed[remote.InventoryID] = created.ID
		if err := s.state.SaveMapping(ctx, domain.EntityProduct, created.ID, remote.InventoryID); err != nil {
			s.logger.Error().Err(err).Str("product_id", created.ID).Msg("failed to save identity mapping")
		}
		run.summary.VismaToCRM.Created++
		s.observeRecord("visma_to_crm", "created")
		run.opts.Events.emit(EventCreated, domain.EntityProduct, domain.DirectionVismaToCRM, remote.InventoryID, created.ID)
		return nil
	}
	s.attachRemoteIdentity(ctx, local, remote.InventoryID, run)
	reversed[remote.InventoryID] = local.ID

	switch decideUpdate(remote.LastModifiedDateTime, local.LastModified, productDiffers(local, remote)) {
	case decisionSkip:
		run.opts.Events.emit(EventSkipped, domain.EntityProduct, domain.DirectionVismaToCRM, remote.InventoryID, "")
		s.observeRecord("visma_to_crm", "skipped")
	case decisionConflict:
		return &domain.ConflictError{
			EntityID: local.ID,
			Message:  fmt.Sprintf("product %q modified on both sides at %s", remote.Description, remote.LastModifiedDateTime.Format(time.RFC3339)),
		}
	case decisionUpdate:
		merged := mergeProductFromVisma(local, remote)
		if err := s.products.Upsert(ctx, merged); err != nil {
			return fmt.Errorf("update crm product %s: %w", local.ID, err)
		}
		*local = *merged
		run.summary.VismaToCRM.Updated++
		s.observeRecord("visma_to_crm", "updated")
		run.opts.Events.emit(EventUpdated, domain.EntityProduct, domain.DirectionVismaToCRM, remote.InventoryID, local.ID)
	}
	return nil
}

// syncPrices pushes the CRM base price for every linked item whose
// remote price disagrees. It is a narrow write: only the price field
// moves, never the rest of the item.
func (s *ProductSyncService) syncPrices(ctx context.Context, locals []*domain.Product, run *productRun) error {
	for _, product := range locals {
		if err := ctx.Err(); err != nil {
			return err
		}
		inventoryID := run.mappings[product.ID]
		if inventoryID == "" {
			inventoryID = product.VismaInventoryID
		}
		if inventoryID == "" {
			continue
		}
		remote := run.remoteIdx.Get(inventoryID)
		if remote == nil || remote.BasePrice == product.BasePrice {
			continue
		}
		var updated *domain.VismaItem
		err := withRetry(ctx, s.retry, func(ctx context.Context) error {
			var e error
			updated, e = s.visma.UpdateItemPrice(ctx, inventoryID, product.BasePrice)
			return e
		})
		if err != nil {
			if recordOutcome(ctx, s.state, s.logger, domain.EntityProduct, domain.DirectionCRMToVisma,
				product.ID, product.Name, fmt.Errorf("update price for %s: %w", inventoryID, err), run.opts.Events) {
				run.conflicts++
			} else {
				run.summary.CRMToVisma.Errors++
			}
			s.observeRecord("crm_to_visma", "error")
			continue
		}
		*remote = *updated
		run.summary.PriceUpdates++
		s.observeRecord("crm_to_visma", "price_updated")
		run.opts.Events.emit(EventPriceUpdated, domain.EntityProduct, domain.DirectionCRMToVisma,
			product.ID, fmt.Sprintf("%s -> %.2f", inventoryID, product.BasePrice))
	}
	return nil
}

func (s *ProductSyncService) persistRunState(ctx context.Context, started time.Time, run *productRun) {
	delta := domain.SyncStats{
		Created:      int64(run.summary.CRMToVisma.Created + run.summary.VismaToCRM.Created),
		Updated:      int64(run.summary.CRMToVisma.Updated + run.summary.VismaToCRM.Updated),
		PriceUpdates: int64(run.summary.PriceUpdates),
		Errors:       int64(run.summary.TotalErrors()),
		Conflicts:    run.conflicts,
	}
	if err := s.state.AddStats(ctx, domain.EntityProduct, delta); err != nil {
		s.logger.Error().Err(err).Msg("failed to update sync stats")
	}
	if err := s.state.SetLastSync(ctx, domain.EntityProduct, started); err != nil {
		s.logger.Error().Err(err).Msg("failed to update last sync time")
	}
}

func (s *ProductSyncService) observeRun(outcome string) {
	s.metrics.ObserveRun(string(domain.EntityProduct), outcome)
}

func (s *ProductSyncService) observeRecord(direction, outcome string) {
	s.metrics.ObserveRecord(string(domain.EntityProduct), direction, outcome)
}

func validateProduct(p *domain.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return &domain.ValidationError{EntityID: p.ID, Message: "name is required"}
	}
	if p.BasePrice < 0 {
		return &domain.ValidationError{EntityID: p.ID, Message: "base price must not be negative"}
	}
	if p.CostPrice < 0 {
		return &domain.ValidationError{EntityID: p.ID, Message: "cost price must not be negative"}
	}
	return nil
}

// productDiffers reports whether the mapped fields disagree between a
// price-list product and its remote counterpart.
func productDiffers(p *domain.Product, v *domain.VismaItem) bool {
	mapped := mapping.ProductToVisma(p)
	return mapped.Description != v.Description ||
		mapped.BasePrice != v.BasePrice ||
		mapped.BaseUnit != v.BaseUnit ||
		mapped.VATCategory != v.VATCategory ||
		mapped.ItemClass != v.ItemClass ||
		mapped.Type != v.Type ||
		mapped.Status != v.Status ||
		mapped.CostPrice != v.CostPrice
}

// mergeProductFromVisma overlays remote fields onto a copy of the local
// record, preserving the local identity and markup.
func mergeProductFromVisma(local *domain.Product, remote *domain.VismaItem) *domain.Product {
	merged := *local
	incoming := mapping.ProductFromVisma(remote)
	merged.Name = incoming.Name
	merged.BasePrice = incoming.BasePrice
	merged.CostPrice = incoming.CostPrice
	merged.Unit = incoming.Unit
	merged.VATCategory = incoming.VATCategory
	merged.Type = incoming.Type
	merged.Active = incoming.Active
	merged.VismaInventoryID = incoming.VismaInventoryID
	merged.LastModified = incoming.LastModified
	if incoming.Category != "" {
		merged.Category = incoming.Category
	}
	return &merged
}

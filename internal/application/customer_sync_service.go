package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crm-visma-sync-layer/internal/application/mapping"
	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/metrics"
	"crm-visma-sync-layer/internal/ports"
)

// CustomerSyncService propagates customers between the CRM and
// Visma.net. A run loads both sides fully, pushes CRM changes out,
// then mirrors remote changes back; per-record failures are isolated
// so one bad record never aborts the rest.
type CustomerSyncService struct {
	customers          ports.CustomerRepository
	state              ports.SyncStateRepository
	visma              ports.VismaClient
	retry              RetryConfig
	createMissingLocal bool
	logger             zerolog.Logger
	metrics            *metrics.Metrics
}

// NewCustomerSyncService wires a customer sync service.
func NewCustomerSyncService(
	customers ports.CustomerRepository,
	state ports.SyncStateRepository,
	visma ports.VismaClient,
	retry RetryConfig,
	createMissingLocal bool,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *CustomerSyncService {
	return &CustomerSyncService{
		customers:          customers,
		state:              state,
		visma:              visma,
		retry:              retry,
		createMissingLocal: createMissingLocal,
		logger:             logger.With().Str("service", "customer_sync").Logger(),
		metrics:            m,
	}
}

// customerRun carries the mutable state of a single run.
type customerRun struct {
	summary   *domain.SyncRunSummary
	mappings  map[string]string
	remoteIdx *RemoteCustomerIndex
	localIdx  *LocalCustomerIndex
	conflicts int64
	// conflictedRemote marks pairs already flagged in the push pass so
	// the pull pass does not record the same conflict twice.
	conflictedRemote map[string]bool
	opts             RunOptions
}

// Run executes one customer sync pass. The returned summary is valid
// even when err is non-nil, covering whatever completed before the
// abort.
func (s *CustomerSyncService) Run(ctx context.Context, opts RunOptions) (*domain.SyncRunSummary, error) {
	started := time.Now()
	summary := &domain.SyncRunSummary{
		Started:    started,
		Direction:  opts.direction(),
		EntityType: domain.EntityCustomer,
	}

	state, err := s.state.Load(ctx, domain.EntityCustomer)
	if err != nil {
		s.observeRun("failed")
		return summary, fmt.Errorf("load sync state: %w", err)
	}
	locals, err := s.customers.List(ctx)
	if err != nil {
		s.observeRun("failed")
		return summary, fmt.Errorf("list crm customers: %w", err)
	}
	remotes, err := s.visma.ListCustomers(ctx)
	if err != nil {
		s.observeRun("failed")
		return summary, fmt.Errorf("list visma customers: %w", err)
	}

	run := &customerRun{
		summary:          summary,
		mappings:         cloneMappings(state.Mappings),
		remoteIdx:        NewRemoteCustomerIndex(remotes),
		localIdx:         NewLocalCustomerIndex(locals),
		conflictedRemote: map[string]bool{},
		opts:             opts,
	}

	s.logger.Info().
		Str("direction", string(summary.Direction)).
		Int("crm_customers", len(locals)).
		Int("visma_customers", len(remotes)).
		Msg("customer sync started")

	var runErr error
	if summary.Direction != domain.DirectionVismaToCRM {
		runErr = s.pushToVisma(ctx, locals, run)
	}
	if runErr == nil && summary.Direction != domain.DirectionCRMToVisma {
		runErr = s.pullFromVisma(ctx, remotes, run)
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
		Int("errors", summary.TotalErrors()).
		Dur("duration", summary.Duration).
		Str("outcome", outcome).
		Msg("customer sync finished")
	return summary, runErr
}

func (s *CustomerSyncService) pushToVisma(ctx context.Context, locals []*domain.Customer, run *customerRun) error {
	for _, customer := range locals {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncLocalCustomer(ctx, customer, run); err != nil {
			if recordOutcome(ctx, s.state, s.logger, domain.EntityCustomer, domain.DirectionCRMToVisma,
				customer.ID, customer.Name, err, run.opts.Events) {
				run.conflicts++
			} else {
				run.summary.CRMToVisma.Errors++
			}
			s.observeRecord("crm_to_visma", "error")
		}
	}
	return nil
}

func (s *CustomerSyncService) syncLocalCustomer(ctx context.Context, customer *domain.Customer, run *customerRun) error {
	if err := validateCustomer(customer); err != nil {
		return err
	}

	match := run.remoteIdx.FindMatch(customer, run.mappings)

	if staleNumber, ok := run.mappings[customer.ID]; ok && match != nil && match.Number != staleNumber {
		// The stored counterpart vanished remotely but an identifier
		// still hit; repoint the mapping instead of creating a twin.
		run.opts.Events.emit(EventRematched, domain.EntityCustomer, domain.DirectionCRMToVisma,
			customer.ID, fmt.Sprintf("remapped from %s to %s", staleNumber, match.Number))
	}
	if match == nil && customer.Email == "" && !mapping.ValidOrgNumber(customer.OrgNumber) {
		if _, hasMapping := run.mappings[customer.ID]; !hasMapping {
			run.opts.Events.emit(EventKeyMissing, domain.EntityCustomer, domain.DirectionCRMToVisma,
				customer.ID, "no matchable identifier, record will be created as new")
		}
	}

	if match == nil {
		return s.createRemoteCustomer(ctx, customer, run)
	}
	// A match is an identity, whatever the update decision turns out
	// to be; persist it now so the next run goes straight through the
	// stored mapping.
	s.attachRemoteIdentity(ctx, customer, match.Number, run)

	switch decideUpdate(customer.LastModified, match.LastModifiedDateTime, customerDiffers(customer, match)) {
	case decisionSkip:
		run.opts.Events.emit(EventSkipped, domain.EntityCustomer, domain.DirectionCRMToVisma, customer.ID, "")
		s.observeRecord("crm_to_visma", "skipped")
	case decisionConflict:
		run.conflictedRemote[match.Number] = true
		return &domain.ConflictError{
			EntityID: customer.ID,
			Message:  fmt.Sprintf("customer %q modified on both sides at %s", customer.Name, customer.LastModified.Format(time.RFC3339)),
		}
	case decisionUpdate:
		mapped := mapping.CustomerToVisma(customer)
		mapped.Number = match.Number
		var updated *domain.VismaCustomer
		err := withRetry(ctx, s.retry, func(ctx context.Context) error {
			var e error
			updated, e = s.visma.UpdateCustomer(ctx, match.Number, mapped)
			return e
		})
		if err != nil {
			return fmt.Errorf("update visma customer %s: %w", match.Number, err)
		}
		// Refresh the index entry so the mirror pass sees no diff and
		// does not bounce the same change back.
		*match = *updated
		run.summary.CRMToVisma.Updated++
		s.observeRecord("crm_to_visma", "updated")
		run.opts.Events.emit(EventUpdated, domain.EntityCustomer, domain.DirectionCRMToVisma, customer.ID, "")
	}
	return nil
}

func (s *CustomerSyncService) createRemoteCustomer(ctx context.Context, customer *domain.Customer, run *customerRun) error {
	mapped := mapping.CustomerToVisma(customer)
	var created *domain.VismaCustomer
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		var e error
		created, e = s.visma.CreateCustomer(ctx, mapped)
		return e
	})
	if err != nil {
		return fmt.Errorf("create visma customer for %s: %w", customer.ID, err)
	}
	run.remoteIdx.Add(created)
	run.summary.CRMToVisma.Created++
	s.observeRecord("crm_to_visma", "created")
	run.opts.Events.emit(EventCreated, domain.EntityCustomer, domain.DirectionCRMToVisma, customer.ID, created.Number)
	s.attachRemoteIdentity(ctx, customer, created.Number, run)
	return nil
}

// attachRemoteIdentity persists the local→remote mapping and the
// back-reference on the CRM record. Failures here are logged, not
// fatal: the next run re-matches via the org number or email.
func (s *CustomerSyncService) attachRemoteIdentity(ctx context.Context, customer *domain.Customer, number string, run *customerRun) {
	if run.mappings[customer.ID] != number {
		run.mappings[customer.ID] = number
		if err := s.state.SaveMapping(ctx, domain.EntityCustomer, customer.ID, number); err != nil {
			s.logger.Error().Err(err).Str("customer_id", customer.ID).Msg("failed to save identity mapping")
		}
	}
	if customer.VismaNumber != number {
		customer.VismaNumber = number
		if err := s.customers.SetVismaNumber(ctx, customer.ID, number); err != nil {
			s.logger.Error().Err(err).Str("customer_id", customer.ID).Msg("failed to set visma back-reference")
		}
	}
}

func (s *CustomerSyncService) pullFromVisma(ctx context.Context, remotes []domain.VismaCustomer, run *customerRun) error {
	reversed := reverseMappings(run.mappings)
	for i := range remotes {
		if err := ctx.Err(); err != nil {
			return err
		}
		remote := &remotes[i]
		if err := s.syncRemoteCustomer(ctx, remote, reversed, run); err != nil {
			if recordOutcome(ctx, s.state, s.logger, domain.EntityCustomer, domain.DirectionVismaToCRM,
				remote.Number, remote.Name, err, run.opts.Events) {
				run.conflicts++
			} else {
				run.summary.VismaToCRM.Errors++
			}
			s.observeRecord("visma_to_crm", "error")
		}
	}
	return nil
}

func (s *CustomerSyncService) syncRemoteCustomer(ctx context.Context, remote *domain.VismaCustomer, reversed map[string]string, run *customerRun) error {
	if run.conflictedRemote[remote.Number] {
		return nil
	}
	local := run.localIdx.FindMatch(remote, reversed)
	if local == nil {
		if !s.createMissingLocal {
			run.opts.Events.emit(EventSkipped, domain.EntityCustomer, domain.DirectionVismaToCRM,
				remote.Number, "no crm counterpart, local creation disabled")
			s.observeRecord("visma_to_crm", "skipped")
			return nil
		}
		created := mapping.CustomerFromVisma(remote)
		created.ID = uuid.NewString()
		if err := s.customers.Upsert(ctx, created); err != nil {
			return fmt.Errorf("create crm customer for %s: %w", remote.Number, err)
		}
		run.mappings[created.ID] = remote.Number
		reversed[remote.Number] = created.ID
		if err := s.state.SaveMapping(ctx, domain.EntityCustomer, created.ID, remote.Number); err != nil {
			s.logger.Error().Err(err).Str("customer_id", created.ID).Msg("failed to save identity mapping")
		}
		run.summary.VismaToCRM.Created++
		s.observeRecord("visma_to_crm", "created")
		run.opts.Events.emit(EventCreated, domain.EntityCustomer, domain.DirectionVismaToCRM, remote.Number, created.ID)
		return nil
	}
	s.attachRemoteIdentity(ctx, local, remote.Number, run)
	reversed[remote.Number] = local.ID

	switch decideUpdate(remote.LastModifiedDateTime, local.LastModified, customerDiffers(local, remote)) {
	case decisionSkip:
		run.opts.Events.emit(EventSkipped, domain.EntityCustomer, domain.DirectionVismaToCRM, remote.Number, "")
		s.observeRecord("visma_to_crm", "skipped")
	case decisionConflict:
		return &domain.ConflictError{
			EntityID: local.ID,
			Message:  fmt.Sprintf("customer %q modified on both sides at %s", remote.Name, remote.LastModifiedDateTime.Format(time.RFC3339)),
		}
	case decisionUpdate:
		merged := mergeCustomerFromVisma(local, remote)
		if err := s.customers.Upsert(ctx, merged); err != nil {
			return fmt.Errorf("update crm customer %s: %w", local.ID, err)
		}
		*local = *merged
		run.summary.VismaToCRM.Updated++
		s.observeRecord("visma_to_crm", "updated")
		run.opts.Events.emit(EventUpdated, domain.EntityCustomer, domain.DirectionVismaToCRM, remote.Number, local.ID)
	}
	return nil
}

func (s *CustomerSyncService) persistRunState(ctx context.Context, started time.Time, run *customerRun) {
	delta := domain.SyncStats{
		Created:   int64(run.summary.CRMToVisma.Created + run.summary.VismaToCRM.Created),
		Updated:   int64(run.summary.CRMToVisma.Updated + run.summary.VismaToCRM.Updated),
		Errors:    int64(run.summary.TotalErrors()),
		Conflicts: run.conflicts,
	}
	if err := s.state.AddStats(ctx, domain.EntityCustomer, delta); err != nil {
		s.logger.Error().Err(err).Msg("failed to update sync stats")
	}
	if err := s.state.SetLastSync(ctx, domain.EntityCustomer, started); err != nil {
		s.logger.Error().Err(err).Msg("failed to update last sync time")
	}
}

func (s *CustomerSyncService) observeRun(outcome string) {
	s.metrics.ObserveRun(string(domain.EntityCustomer), outcome)
}

func (s *CustomerSyncService) observeRecord(direction, outcome string) {
	s.metrics.ObserveRecord(string(domain.EntityCustomer), direction, outcome)
}

// validateCustomer is the pre-flight check before any remote write.
func validateCustomer(c *domain.Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return &domain.ValidationError{EntityID: c.ID, Message: "name is required"}
	}
	if c.OrgNumber != "" && !mapping.ValidOrgNumber(c.OrgNumber) {
		return &domain.ValidationError{EntityID: c.ID, Message: fmt.Sprintf("malformed organization number %q", c.OrgNumber)}
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return &domain.ValidationError{EntityID: c.ID, Message: fmt.Sprintf("malformed email %q", c.Email)}
	}
	if c.CreditLimit < 0 {
		return &domain.ValidationError{EntityID: c.ID, Message: "credit limit must not be negative"}
	}
	return nil
}

// customerDiffers reports whether the mapped fields disagree between a
// canonical customer and its remote counterpart.
func customerDiffers(c *domain.Customer, v *domain.VismaCustomer) bool {
	mapped := mapping.CustomerToVisma(c)
	if mapped.Name != v.Name ||
		mapped.CorporateID != v.CorporateID ||
		mapped.VATRegistrationID != v.VATRegistrationID ||
		mapped.CurrencyID != v.CurrencyID ||
		mapped.Terms != v.Terms ||
		mapped.CreditLimit != v.CreditLimit ||
		mapped.WebSite != v.WebSite {
		return true
	}
	if contactDiffers(mapped.MainContact, v.MainContact) {
		return true
	}
	return addressDiffers(mapped.MainAddress, v.MainAddress)
}

func contactDiffers(a, b *domain.VismaContact) bool {
	var av, bv domain.VismaContact
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av != bv
}

func addressDiffers(a, b *domain.VismaAddress) bool {
	var av, bv domain.VismaAddress
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av != bv
}

// mergeCustomerFromVisma overlays remote fields onto a copy of the
// local record, preserving local-only fields and the local identity.
func mergeCustomerFromVisma(local *domain.Customer, remote *domain.VismaCustomer) *domain.Customer {
	merged := *local
	incoming := mapping.CustomerFromVisma(remote)
	merged.CustomerNumber = incoming.CustomerNumber
	merged.Name = incoming.Name
	merged.Website = incoming.Website
	merged.CreditLimit = incoming.CreditLimit
	merged.PaymentTerms = incoming.PaymentTerms
	merged.Currency = incoming.Currency
	merged.VismaNumber = incoming.VismaNumber
	merged.LastModified = incoming.LastModified
	if incoming.OrgNumber != "" {
		merged.OrgNumber = incoming.OrgNumber
	}
	if incoming.VATID != "" {
		merged.VATID = incoming.VATID
	}
	if incoming.Email != "" {
		merged.Email = incoming.Email
	}
	if incoming.Phone != "" {
		merged.Phone = incoming.Phone
	}
	if incoming.Address != (domain.Address{}) {
		merged.Address = incoming.Address
	}
	return &merged
}

func cloneMappings(mappings map[string]string) map[string]string {
	cloned := make(map[string]string, len(mappings))
	for k, v := range mappings {
		cloned[k] = v
	}
	return cloned
}

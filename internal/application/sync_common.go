package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/ports"
)

// RunOptions narrows a sync run. The zero value means a bidirectional
// run with no event sink.
type RunOptions struct {
	Direction  domain.Direction
	SyncPrices bool
	Events     EventRecorder
}

func (o RunOptions) direction() domain.Direction {
	if o.Direction == "" {
		return domain.DirectionBidirectional
	}
	return o.Direction
}

type updateDecision int

const (
	decisionSkip updateDecision = iota
	decisionUpdate
	decisionConflict
)

// decideUpdate resolves a matched pair. With two trustworthy
// timestamps a strictly newer source wins, a strictly newer target
// means the change already propagated the other way, and a tie with
// differing content is a conflict for manual review. A zero timestamp
// on either side makes the ordering meaningless, so the field diff
// decides instead: the source overwrites rather than being dropped.
func decideUpdate(source, target time.Time, differs bool) updateDecision {
	if source.IsZero() || target.IsZero() {
		if differs {
			return decisionUpdate
		}
		return decisionSkip
	}
	if source.After(target) {
		return decisionUpdate
	}
	if target.After(source) {
		return decisionSkip
	}
	if differs {
		return decisionConflict
	}
	return decisionSkip
}

// recordOutcome writes a per-record failure or conflict to the sync
// state and mirrors it on the event sink. Conflicts count separately
// from errors.
func recordOutcome(ctx context.Context, state ports.SyncStateRepository, logger zerolog.Logger,
	entityType domain.EntityType, direction domain.Direction, entityID, entityName string,
	cause error, events EventRecorder) (conflicted bool) {

	var conflictErr *domain.ConflictError
	conflicted = errors.As(cause, &conflictErr)

	eventType := EventError
	if conflicted {
		eventType = EventConflict
	}
	events.emit(eventType, entityType, direction, entityID, cause.Error())

	record := domain.ConflictRecord{
		ID:         uuid.NewString(),
		Direction:  direction,
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Message:    cause.Error(),
		Timestamp:  time.Now(),
	}
	if err := state.AddConflict(ctx, entityType, record); err != nil {
		logger.Error().Err(err).
			Str("entity_id", entityID).
			Msg("failed to persist conflict record")
	}
	logger.Warn().
		Str("entity_type", string(entityType)).
		Str("direction", string(direction)).
		Str("entity_id", entityID).
		Str("entity_name", entityName).
		Err(cause).
		Msg("record sync failed")
	return conflicted
}

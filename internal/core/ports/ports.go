package ports

import (
	"context"
	"time"

	"flowengine/internal/domain"

	"github.com/google/uuid"
)

// TransitionUpdate carries one optimistic-locked state change for a flow.
// The repository applies it only when the flow's version still matches
// ExpectedVersion; the transition and error entries are appended to the
// flow's audit logs, never rewritten.
type TransitionUpdate struct {
	ExpectedVersion int
	Status          domain.FlowStatus
	CurrentPhase    string
	RetryCount      int
	PausedReason    string
	Transition      *domain.PhaseTransition
	ErrorEntry      *domain.ErrorRecord
}

// FlowRepository is the flow half of the FlowStateStore. All reads are
// tenant-scoped; a record outside the caller's scope behaves as absent.
type FlowRepository interface {
	// Create a master flow together with its child flow in one transaction.
	CreateFlowWithChild(ctx context.Context, flow *domain.Flow, child *domain.ChildFlow) error

	GetByID(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*domain.Flow, error)
	GetChildFlow(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*domain.ChildFlow, error)

	// FindChildByFlowID looks a child flow up without tenant scoping. Used
	// only by corruption recovery, where the master row is already gone.
	FindChildByFlowID(ctx context.Context, flowID uuid.UUID) (*domain.ChildFlow, error)

	// ApplyTransition performs the optimistic-locked write of one state
	// change. Returns domain.ErrVersionConflict when the version moved.
	ApplyTransition(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope, update TransitionUpdate) error

	// CreateFlowForOrphans creates a recovery flow with its child and
	// re-links the orphaned imports to it, all in one transaction. Nothing
	// commits when any step fails.
	CreateFlowForOrphans(ctx context.Context, flow *domain.Flow, child *domain.ChildFlow, importIDs []uuid.UUID) (int64, error)
}

// ImportRepository covers the related records corruption recovery searches
// and repairs.
type ImportRepository interface {
	Create(ctx context.Context, rec *domain.ImportRecord) error
	FindByFlowID(ctx context.Context, flowID uuid.UUID) ([]domain.ImportRecord, error)
	FindOrphansInWindow(ctx context.Context, scope domain.TenantScope, since time.Time) ([]domain.ImportRecord, error)

	// AttachToFlow re-links import records to a flow inside one transaction.
	// Records already attached to targetFlowID are left untouched, so a
	// repeated repair is a no-op.
	AttachToFlow(ctx context.Context, importIDs []uuid.UUID, targetFlowID uuid.UUID) (int64, error)
}

// GapResolution is one target's requested mutation in a bulk submit.
type GapResolution struct {
	GapID      uuid.UUID
	Value      string
	ResolvedBy uuid.UUID
}

// GapRepository is the gap half of the FlowStateStore.
type GapRepository interface {
	CreateMany(ctx context.Context, gaps []domain.Gap) error
	FindByIDs(ctx context.Context, scope domain.TenantScope, ids []uuid.UUID) ([]domain.Gap, error)
	FindByChildFlow(ctx context.Context, scope domain.TenantScope, childFlowID uuid.UUID) ([]domain.Gap, error)

	// ApplyResolutions applies one chunk of resolutions in a single
	// transaction. When overwrite is false, gaps that already carry a
	// resolved value are skipped and counted separately.
	ApplyResolutions(ctx context.Context, scope domain.TenantScope, resolutions []GapResolution, overwrite bool) (updated int, skipped int, err error)
}

// PhaseDecisionProvider decides what happens after a phase result. Rule-based
// implementations must be deterministic for identical inputs; agent-driven
// ones may consult an external model, but the engine never depends on one
// being available.
type PhaseDecisionProvider interface {
	Decide(ctx context.Context, flowType domain.FlowType, phaseName string, result domain.PhaseResult, retryCount int) (domain.Decision, error)
}

// BackgroundQueue carries detached jobs dispatched by phase handlers.
type BackgroundQueue interface {
	// Push a job onto the pending list.
	Push(ctx context.Context, job domain.BackgroundJob) error

	// Wait (block) until a job is available.
	Pop(ctx context.Context) (domain.BackgroundJob, error)
}

// EventBus carries background-job completion signals back to the
// orchestrator's completion listener.
type EventBus interface {
	PublishJobCompleted(ctx context.Context, event domain.BackgroundJobCompletedEvent) error
	SubscribeJobCompleted(ctx context.Context) (<-chan domain.BackgroundJobCompletedEvent, error)
}

// RateLimiter guards expensive external calls. Allow reports whether the key
// may fire within the current window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

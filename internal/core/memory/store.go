package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"

	"github.com/google/uuid"
)

// Store is an in-memory FlowStateStore honoring the same contracts as the
// postgres repositories: tenant-scoped reads, optimistic versioning and
// append-only audit logs. Tests run the engine against it.
type Store struct {
	mu      sync.Mutex
	flows   map[uuid.UUID]*domain.Flow
	childs  map[uuid.UUID]*domain.ChildFlow // keyed by flow ID
	imports map[uuid.UUID]*domain.ImportRecord
	gaps    map[uuid.UUID]*domain.Gap
}

func NewStore() *Store {
	return &Store{
		flows:   make(map[uuid.UUID]*domain.Flow),
		childs:  make(map[uuid.UUID]*domain.ChildFlow),
		imports: make(map[uuid.UUID]*domain.ImportRecord),
		gaps:    make(map[uuid.UUID]*domain.Gap),
	}
}

var (
	_ ports.FlowRepository   = (*Store)(nil)
	_ ports.ImportRepository = (*Store)(nil)
	_ ports.GapRepository    = (*Store)(nil)
)

// --- FlowRepository ---

func (s *Store) CreateFlowWithChild(ctx context.Context, flow *domain.Flow, child *domain.ChildFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := *flow
	c := *child
	s.flows[f.ID] = &f
	s.childs[c.FlowID] = &c
	return nil
}

func (s *Store) GetByID(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[flowID]
	if !ok || f.ClientAccountID != scope.ClientAccountID || f.EngagementID != scope.EngagementID {
		return nil, domain.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (s *Store) GetChildFlow(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*domain.ChildFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.childs[flowID]
	if !ok || c.ClientAccountID != scope.ClientAccountID || c.EngagementID != scope.EngagementID {
		return nil, domain.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *Store) FindChildByFlowID(ctx context.Context, flowID uuid.UUID) (*domain.ChildFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.childs[flowID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *Store) ApplyTransition(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope, update ports.TransitionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[flowID]
	if !ok || f.ClientAccountID != scope.ClientAccountID || f.EngagementID != scope.EngagementID {
		return domain.ErrNotFound
	}
	if f.Version != update.ExpectedVersion {
		return domain.ErrVersionConflict
	}
	if update.Status != f.Status && !f.CanTransition(update.Status) {
		return domain.ErrInvalidTransition
	}

	if update.Transition != nil {
		var entries []domain.PhaseTransition
		if len(f.PhaseTransitions) > 0 {
			_ = json.Unmarshal(f.PhaseTransitions, &entries)
		}
		entries = append(entries, *update.Transition)
		f.PhaseTransitions, _ = json.Marshal(entries)
	}
	if update.ErrorEntry != nil {
		var entries []domain.ErrorRecord
		if len(f.ErrorHistory) > 0 {
			_ = json.Unmarshal(f.ErrorHistory, &entries)
		}
		entries = append(entries, *update.ErrorEntry)
		f.ErrorHistory, _ = json.Marshal(entries)
	}

	f.Status = update.Status
	f.CurrentPhase = update.CurrentPhase
	f.RetryCount = update.RetryCount
	f.PausedReason = update.PausedReason
	f.Version = update.ExpectedVersion + 1
	f.UpdatedAt = time.Now()
	return nil
}

// CreateFlowForOrphans mirrors the transactional postgres implementation:
// under one lock the flow, its child and the re-linked imports commit
// together.
func (s *Store) CreateFlowForOrphans(ctx context.Context, flow *domain.Flow, child *domain.ChildFlow, importIDs []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := *flow
	c := *child
	s.flows[f.ID] = &f
	s.childs[c.FlowID] = &c

	var attached int64
	for _, id := range importIDs {
		r, ok := s.imports[id]
		if !ok {
			continue
		}
		if r.FlowID != nil && *r.FlowID == f.ID {
			continue
		}
		target := f.ID
		r.FlowID = &target
		attached++
	}
	return attached, nil
}

// DropFlowRow removes only the master row, leaving child flows and related
// records behind. Test hook simulating a corrupted store.
func (s *Store) DropFlowRow(flowID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, flowID)
}

// --- ImportRepository ---

func (s *Store) Create(ctx context.Context, rec *domain.ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.imports[copied.ID] = &copied
	return nil
}

func (s *Store) FindByFlowID(ctx context.Context, flowID uuid.UUID) ([]domain.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ImportRecord
	for _, r := range s.imports {
		if r.FlowID != nil && *r.FlowID == flowID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) FindOrphansInWindow(ctx context.Context, scope domain.TenantScope, since time.Time) ([]domain.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ImportRecord
	for _, r := range s.imports {
		if r.ClientAccountID != scope.ClientAccountID || r.EngagementID != scope.EngagementID {
			continue
		}
		if r.CreatedAt.Before(since) {
			continue
		}
		dangling := r.FlowID == nil
		if r.FlowID != nil {
			_, exists := s.flows[*r.FlowID]
			dangling = !exists
		}
		if dangling {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) AttachToFlow(ctx context.Context, importIDs []uuid.UUID, targetFlowID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var attached int64
	for _, id := range importIDs {
		r, ok := s.imports[id]
		if !ok {
			continue
		}
		if r.FlowID != nil && *r.FlowID == targetFlowID {
			continue
		}
		target := targetFlowID
		r.FlowID = &target
		attached++
	}
	return attached, nil
}

// --- GapRepository ---

func (s *Store) CreateMany(ctx context.Context, gaps []domain.Gap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range gaps {
		copied := g
		s.gaps[copied.ID] = &copied
	}
	return nil
}

func (s *Store) FindByIDs(ctx context.Context, scope domain.TenantScope, ids []uuid.UUID) ([]domain.Gap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Gap
	for _, id := range ids {
		g, ok := s.gaps[id]
		if !ok || g.ClientAccountID != scope.ClientAccountID || g.EngagementID != scope.EngagementID {
			continue
		}
		out = append(out, *g)
	}
	return out, nil
}

func (s *Store) FindByChildFlow(ctx context.Context, scope domain.TenantScope, childFlowID uuid.UUID) ([]domain.Gap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Gap
	for _, g := range s.gaps {
		if g.ChildFlowID != childFlowID {
			continue
		}
		if g.ClientAccountID != scope.ClientAccountID || g.EngagementID != scope.EngagementID {
			continue
		}
		out = append(out, *g)
	}
	return out, nil
}

func (s *Store) ApplyResolutions(ctx context.Context, scope domain.TenantScope, resolutions []ports.GapResolution, overwrite bool) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass validates so the chunk applies all-or-nothing, matching the
	// transactional postgres implementation.
	for _, res := range resolutions {
		g, ok := s.gaps[res.GapID]
		if !ok || g.ClientAccountID != scope.ClientAccountID || g.EngagementID != scope.EngagementID {
			return 0, 0, domain.ErrNotFound
		}
	}

	var updated, skipped int
	for _, res := range resolutions {
		g := s.gaps[res.GapID]
		if g.ResolvedValue != nil && !overwrite {
			skipped++
			continue
		}
		g.Resolve(res.Value, res.ResolvedBy)
		updated++
	}
	return updated, skipped, nil
}

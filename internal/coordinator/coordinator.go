package coordinator

import (
	"context"
	"log"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/orchestrator"
)

// Listener resumes flows paused on background work. It is the only path by
// which an awaiting_background pause ends: a completion signal, never a timer
// and never agent re-evaluation.
type Listener struct {
	orch     *orchestrator.Orchestrator
	eventBus ports.EventBus
}

func NewListener(orch *orchestrator.Orchestrator, bus ports.EventBus) *Listener {
	return &Listener{orch: orch, eventBus: bus}
}

// Start begins the infinite listening loop. Call this in main.go as a goroutine.
func (l *Listener) Start(ctx context.Context) {
	log.Println("Completion listener started, listening for events...")

	eventChannel, err := l.eventBus.SubscribeJobCompleted(ctx)
	if err != nil {
		log.Fatalf("Failed to subscribe to event bus: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Completion listener shutting down...")
			return

		case event := <-eventChannel:
			l.handleJobCompleted(ctx, event)
		}
	}
}

func (l *Listener) handleJobCompleted(ctx context.Context, event domain.BackgroundJobCompletedEvent) {
	log.Printf("Listener: background %s job %s for flow %s completed (success=%v)",
		event.JobType, event.JobID, event.FlowID, event.Success)

	if err := l.orch.ResumeFromBackground(ctx, event); err != nil {
		if err == domain.ErrNotFound {
			log.Printf("Listener: flow %s no longer resolvable, dropping completion", event.FlowID)
			return
		}
		log.Printf("Listener: failed to resume flow %s: %v", event.FlowID, err)
	}
}

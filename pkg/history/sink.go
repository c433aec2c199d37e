package history

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/taskloop/taskloop/pkg/engine"
)

// Sink records execution events into the store. Persistence failures are
// logged and never fail the run.
type Sink struct {
	store *Store
	ctx   context.Context
	log   zerolog.Logger
}

// NewSink creates a sink over an initialized store.
func NewSink(ctx context.Context, store *Store, log zerolog.Logger) *Sink {
	return &Sink{
		store: store,
		ctx:   ctx,
		log:   log.With().Str("component", "history").Logger(),
	}
}

// Publish implements engine.EventSink.
func (s *Sink) Publish(ev engine.Event) {
	var err error
	switch ev.Type {
	case engine.EventRunStarted:
		err = s.store.CreateRun(s.ctx, ev.RunID, ev.TaskDir, ev.Time)
	case engine.EventTaskCompleted:
		err = s.store.RecordTask(s.ctx, TaskResult{
			RunID:     ev.RunID,
			Iteration: ev.Iteration,
			Try:       ev.Try,
			Task:      ev.Task,
			Outcome:   string(ev.Outcome),
			Duration:  ev.Duration,
			CreatedAt: ev.Time,
		})
	case engine.EventRunCompleted:
		err = s.store.FinishRun(s.ctx, ev.RunID, ev.Failed, ev.Time)
	default:
		return
	}

	if err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to record event")
	}
}

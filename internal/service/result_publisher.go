package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/repository"
)

const DefaultPublishTimeout = 3 * time.Second

// ResultSink accepts graded results for durable persistence.
type ResultSink interface {
	Publish(ctx context.Context, rec repository.ResultRecord) error
}

// ResultPublisher forwards submitted results to a ResultSink off the engine's
// dispatch path.
type ResultPublisher struct {
	sink    ResultSink
	timeout time.Duration
	log     zerolog.Logger
	wg      sync.WaitGroup
}

func NewResultPublisher(sink ResultSink, log zerolog.Logger) *ResultPublisher {
	return &ResultPublisher{
		sink:    sink,
		timeout: DefaultPublishTimeout,
		log:     log.With().Str("component", "result_publisher").Logger(),
	}
}

// OnEvent implements engine.Listener.
func (p *ResultPublisher) OnEvent(ev engine.Event) {
	if ev.Type != engine.EventSubmitted || ev.Result == nil {
		return
	}

	rec, err := repository.NewResultRecord(*ev.Result, ev.Forced, ev.At)
	if err != nil {
		p.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Cannot build result record")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.sink.Publish(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Failed to publish result")
			return
		}
		p.log.Debug().Str("attempt_id", ev.AttemptID).Msg("Result queued for persistence")
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *ResultPublisher) Wait() {
	p.wg.Wait()
}

// Package pipeline implements the bounded three-stage runtime (C6): one
// source goroutine, a work-stealing pool of transformer goroutines, and
// one sink goroutine, wired together by buffered channels and
// a single cancellation cause.
package pipeline

import (
	"context"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/transform"
)

// Parcel is one entity in flight between stages.
type Parcel struct {
	Entity *citymodel.Entity
}

// Severity classifies a FeedbackMessage; Fatal cancels the run.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityFatal
)

// FeedbackMessage is posted by any stage to the shared feedback channel.
type FeedbackMessage struct {
	Severity Severity
	Message  string
	Err      error
}

// Source produces parcels onto out until the document is exhausted or ctx
// is cancelled. Run reads Schema once, before the source starts, so only
// type defs a source declares before its own Run reach the transforms and
// the sink; the citygml source returns an empty schema at that point.
type Source interface {
	Schema() *schema.Schema
	Run(ctx context.Context, out chan<- Parcel, feedback chan<- FeedbackMessage) error
}

// Sink consumes parcels from in until the channel closes or ctx is
// cancelled. sch is the final, frozen schema after every transform has run.
type Sink interface {
	Run(ctx context.Context, in <-chan Parcel, feedback chan<- FeedbackMessage, sch *schema.Schema) error
}

// Config tunes the runtime; zero values fall back to sane defaults in Run.
type Config struct {
	// Parallelism is the number of transformer goroutines. 0 means
	// runtime.NumCPU().
	Parallelism int
	// ChannelCapacity bounds every inter-stage channel.
	ChannelCapacity int
}

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.NumCPU()
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = 10000
	}
	return c
}

// Run wires src -> chain -> sink through bounded channels, starting
// cfg.Parallelism transformer goroutines racing on the same input channel
// (work-stealing via shared receive). It computes the final schema by
// folding every transform's TransformSchema before the sink's first
// parcel, and returns the first fatal error observed by any stage, or the
// context's cancellation cause.
func Run(ctx context.Context, cfg Config, src Source, chain []transform.Transform, sink Sink) error {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	finalSchema, err := foldSchema(src.Schema(), chain)
	if err != nil {
		return err
	}

	feedback := make(chan FeedbackMessage, 1024)
	sourceOut := make(chan Parcel, cfg.ChannelCapacity)
	sinkIn := make(chan Parcel, cfg.ChannelCapacity)

	var wg sync.WaitGroup
	var feedbackWg sync.WaitGroup
	errs := make(chan error, 3)

	feedbackWg.Add(1)
	go func() {
		defer feedbackWg.Done()
		for msg := range feedback {
			switch msg.Severity {
			case SeverityFatal:
				log.WithFields(log.Fields{"stage": "pipeline"}).Errorf("fatal: %s", msg.Message)
				cancel(msg.Err)
			case SeverityWarn:
				log.Warnf("%s", msg.Message)
			default:
				log.Infof("%s", msg.Message)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(sourceOut)
		if err := src.Run(ctx, sourceOut, feedback); err != nil {
			errs <- err
			cancel(err)
		}
	}()

	var transformWg sync.WaitGroup
	for i := 0; i < cfg.Parallelism; i++ {
		transformWg.Add(1)
		go func(worker int) {
			defer transformWg.Done()
			runTransformer(ctx, worker, chain, sourceOut, sinkIn, feedback, errs, cancel)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		transformWg.Wait()
		close(sinkIn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sink.Run(ctx, sinkIn, feedback, finalSchema); err != nil {
			errs <- err
			cancel(err)
		}
	}()

	wg.Wait()
	close(feedback)
	feedbackWg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
		return cause
	}
	return nil
}

// runTransformer pulls parcels from in, applies every transform in chain
// in order (a transform may fan one entity out into several, e.g.
// flatten), and forwards the results to out. It checks ctx at every
// channel operation so a cancelled run drains promptly.
func runTransformer(ctx context.Context, worker int, chain []transform.Transform, in <-chan Parcel, out chan<- Parcel, feedback chan<- FeedbackMessage, errs chan<- error, cancel context.CancelCauseFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-in:
			if !ok {
				return
			}
			entities := []*citymodel.Entity{p.Entity}
			for _, t := range chain {
				var next []*citymodel.Entity
				for _, e := range entities {
					results, err := t.TransformEntity(e)
					if err != nil {
						select {
						case feedback <- FeedbackMessage{Severity: SeverityFatal, Message: err.Error(), Err: err}:
						case <-ctx.Done():
						}
						errs <- err
						cancel(err)
						return
					}
					next = append(next, results...)
				}
				entities = next
			}
			for _, e := range entities {
				select {
				case out <- Parcel{Entity: e}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// foldSchema applies every transform's TransformSchema in order, returning
// the frozen result so the sink never observes a schema the transform
// chain could still mutate.
func foldSchema(s *schema.Schema, chain []transform.Transform) (*schema.Schema, error) {
	cur := s
	for _, t := range chain {
		next, err := t.TransformSchema(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur.Freeze(), nil
}

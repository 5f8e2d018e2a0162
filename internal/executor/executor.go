// Package executor runs blocking hardware operations off the message-handling
// path. A fixed worker pool picks up submitted operations; every operation
// completes exactly once, with panics converted to error outcomes.
package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tillbridge/tillbridge/internal/model"
)

// Kind labels an operation for logging.
type Kind string

const (
	OpPrint     Kind = "print"
	OpTestPrint Kind = "test_print"
	OpDrawer    Kind = "open_drawer"
	OpDiscover  Kind = "discover"
	OpNotify    Kind = "notification"
	OpKeyboard  Kind = "keyboard"
)

// Operation is one blocking unit of hardware work.
type Operation struct {
	Kind  Kind
	JobID string
	Run   func(ctx context.Context) (any, error)
}

// Outcome is the single terminal result of an operation.
type Outcome struct {
	Value any
	Err   error
}

type task struct {
	op  Operation
	out chan Outcome
}

// Pool is the hardware task executor. Operations for different jobs are
// independent and may interleave; ordering per physical printer comes from
// the registry's connection exclusivity, not from the pool.
type Pool struct {
	tasks   chan task
	workers int
	log     zerolog.Logger
}

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 4

// NewPool builds an executor pool. Start must be called before Submit
// outcomes are delivered.
func NewPool(workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		tasks:   make(chan task, 64),
		workers: workers,
		log:     log.With().Str("component", "executor").Logger(),
	}
}

// Start launches the workers. They drain until ctx is cancelled; operations
// still queued at shutdown complete with ctx's error rather than vanishing.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Submit queues an operation and returns the channel its single Outcome will
// be delivered on.
func (p *Pool) Submit(op Operation) <-chan Outcome {
	out := make(chan Outcome, 1)
	p.tasks <- task{op: op, out: out}
	return out
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Fail whatever is still queued so no submitter waits forever.
			for {
				select {
				case t := <-p.tasks:
					t.out <- Outcome{Err: ctx.Err()}
				default:
					return
				}
			}
		case t := <-p.tasks:
			if ctx.Err() != nil {
				t.out <- Outcome{Err: ctx.Err()}
				continue
			}
			t.out <- p.run(ctx, t.op)
		}
	}
}

// run executes one operation, converting panics into internal errors.
func (p *Pool) run(ctx context.Context, op Operation) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Str("kind", string(op.Kind)).
				Str("job_id", op.JobID).
				Interface("panic", r).
				Msg("operation panicked")
			outcome = Outcome{Err: &model.CodedError{
				Code:    model.CodeInternalError,
				Message: fmt.Sprintf("operation %s crashed", op.Kind),
				Kind:    model.ErrInternal,
			}}
		}
	}()

	p.log.Debug().Str("kind", string(op.Kind)).Str("job_id", op.JobID).Msg("operation started")
	value, err := op.Run(ctx)
	if err != nil {
		p.log.Debug().Err(err).Str("kind", string(op.Kind)).Str("job_id", op.JobID).Msg("operation failed")
	} else {
		p.log.Debug().Str("kind", string(op.Kind)).Str("job_id", op.JobID).Msg("operation completed")
	}
	return Outcome{Value: value, Err: err}
}

package supervisor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/latencyx/core/internal/models"
	"github.com/latencyx/core/internal/strategies"
)

// Supervisor owns the merged tick channel, the fill channel, and the
// lifecycle of every worker reading or writing them.
type Supervisor struct {
	cfg   Config
	ticks chan models.Tick
	fills chan models.Fill
}

// New allocates a Supervisor's channels per cfg (defaults applied for
// zero-valued buffer sizes and MinCPU).
func New(cfg Config) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg:   cfg,
		ticks: make(chan models.Tick, cfg.TickBufferSize),
		fills: make(chan models.Fill, cfg.FillBufferSize),
	}
}

// Fills returns the fill channel every execution gateway's Fill output
// must be wired to, so the risk loop Run starts actually sees them.
// Callers build their gateways/strategy with this channel before filling
// in the rest of Config via the setters below and calling Run.
func (s *Supervisor) Fills() chan<- models.Fill { return s.fills }

// SetStrategy, SetConnectors and SetDashboardTask fill in the parts of
// Config that depend on the fill channel Fills returns, so they can be
// built after the Supervisor itself without constructing a second one
// (which would allocate a second, disconnected fill channel).
func (s *Supervisor) SetStrategy(strat strategies.Strategy)         { s.cfg.Strategy = strat }
func (s *Supervisor) SetConnectors(specs []ConnectorSpec)           { s.cfg.Connectors = specs }
func (s *Supervisor) SetDashboardTask(task func(ctx context.Context) error) {
	s.cfg.DashboardTask = task
}

func (s *Supervisor) publishLog(level, msg string) {
	s.cfg.Bus.Publish(models.LogEvent(models.LogRecord{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Target:    "supervisor",
		Message:   msg,
	}))
}

// Run starts every connector, the strategy worker, the risk loop, and
// the dashboard task (if configured), and blocks until the merged tick
// channel closes (every connector has exited) or ctx is cancelled. On
// return it has closed the fill channel and waited for the risk loop to
// drain it. A panic in any worker is logged and re-raised, terminating
// the process — restart is the operator's responsibility.
func (s *Supervisor) Run(ctx context.Context) error {
	if n := runtime.NumCPU(); n < s.cfg.MinCPU {
		return fmt.Errorf("supervisor: host exposes %d schedulable cpus, need at least %d", n, s.cfg.MinCPU)
	}

	s.publishLog("info", "pipeline starting")
	defer s.publishLog("info", "pipeline stopped")

	connGroup, connCtx := errgroup.WithContext(ctx)
	for _, spec := range s.cfg.Connectors {
		spec := spec
		connGroup.Go(s.pinnedWorker("connector:"+string(spec.Connector.Venue()), func() error {
			return spec.Connector.Subscribe(connCtx, spec.Symbols, s.ticks)
		}))
	}

	go func() {
		connGroup.Wait()
		close(s.ticks)
	}()

	workers, workerCtx := errgroup.WithContext(ctx)

	workers.Go(s.pinnedWorker("risk", func() error {
		return s.cfg.Risk.Consume(workerCtx, s.fills)
	}))

	if s.cfg.DashboardTask != nil {
		workers.Go(s.wrappedWorker("dashboard", func() error {
			return s.cfg.DashboardTask(workerCtx)
		}))
	}

	strategyErr := s.runStrategyWorker(workerCtx)

	// The merged tick channel has closed (or ctx was cancelled): stop
	// accepting new fills and let the risk loop drain what is already
	// buffered. A strategy that spawns detached order submissions
	// (triangular arbitrage) may still have one in flight here; that
	// submission's fill is then dropped on a closed channel send, which
	// is the same partial-fill cost the strategy's own contract already
	// accepts.
	close(s.fills)

	workersErr := workers.Wait()
	connErr := connGroup.Wait()

	for _, err := range []error{strategyErr, workersErr, connErr} {
		if err != nil && err != context.Canceled {
			return err
		}
	}
	return nil
}

// runStrategyWorker serially applies ticks to the configured strategy
// until the merged tick channel closes or ctx is cancelled.
func (s *Supervisor) runStrategyWorker(ctx context.Context) error {
	worker := s.pinnedWorker("strategy", func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case tick, ok := <-s.ticks:
				if !ok {
					return nil
				}
				if err := s.cfg.Strategy.OnTick(ctx, tick); err != nil {
					s.cfg.Log.Error("strategy failed to process tick",
						zap.String("symbol", tick.Symbol), zap.Error(err))
				}
			}
		}
	})
	return worker()
}

// pinnedWorker wraps fn so it runs with its goroutine locked to its
// current OS thread for the duration — Go's stand-in for the CPU
// affinity the spec asks for, since the runtime gives no portable way to
// pin a goroutine to a specific core — and recovers+re-panics on panic
// so the crash is logged before it terminates the process.
func (s *Supervisor) pinnedWorker(name string, fn func() error) func() error {
	inner := s.wrappedWorker(name, fn)
	return func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		return inner()
	}
}

// wrappedWorker logs and re-panics on a panic inside fn.
func (s *Supervisor) wrappedWorker(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.cfg.Log.Error("worker panicked", zap.String("worker", name), zap.Any("panic", r))
				s.publishLog("error", fmt.Sprintf("worker %q panicked: %v", name, r))
				panic(r)
			}
		}()
		return fn()
	}
}

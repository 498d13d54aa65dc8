package bench

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/qwtsc/yarb-tree/lib/id"
	"github.com/qwtsc/yarb-tree/lib/infra"
	"github.com/qwtsc/yarb-tree/observability"
	"github.com/qwtsc/yarb-tree/xlog"
)

// RunIDContextKey is the context key of the run id, registered as
// a context field of the cli logger.
const RunIDContextKey = "runId"

const (
	ctxCheckEvery = 4096
	runIDLength   = 12
)

// RoundResult is one container inserting one round of workload.
type RoundResult struct {
	RunID      string
	Round      int
	Container  string
	Workload   WorkloadKind
	Total      int
	Inserted   int64
	Duplicates int64
	Elapsed    time.Duration
	RSSBytes   uint64
}

// Runner inserts the same workload into every configured container
// round by round. In parallel mode the containers of a round run on
// an ants pool, each task owns its container.
type Runner struct {
	cfg    Config
	runID  string
	seed   uint64
	logger xlog.XLogger
	meter  *observability.BenchMeter
	pool   *ants.Pool
	proc   *process.Process
}

func NewRunner(cfg Config, logger xlog.XLogger, meter *observability.BenchMeter) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, infra.NewErrorStack("nil runner logger")
	}
	runID, err := id.NewNanoIDGen(runIDLength)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:    cfg,
		runID:  runID(),
		seed:   cfg.Seed,
		logger: logger.Named("Runner"),
		meter:  meter,
	}
	if r.seed == 0 {
		r.seed = uint64(time.Now().UnixNano())
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		r.proc = proc
	} else {
		r.logger.Warn("process stats unavailable", zap.String("error", err.Error()))
	}
	if cfg.Parallel {
		pool, err := ants.NewPool(cfg.PoolSize,
			ants.WithLogger(xlog.NewAntsXLogger(logger)),
			ants.WithPanicHandler(func(p any) {
				r.logger.Error(nil, "bench task panic", zap.Any("panic", p))
			}),
		)
		if err != nil {
			return nil, infra.WrapErrorStackWithMessage(err, "bench ants pool")
		}
		r.pool = pool
	}
	return r, nil
}

func (r *Runner) RunID() string {
	return r.runID
}

func (r *Runner) Seed() uint64 {
	return r.seed
}

func (r *Runner) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Release()
}

// Run stops before the next round once ctx is done, returning the
// finished results along with the error.
func (r *Runner) Run(ctx context.Context) ([]RoundResult, error) {
	ctx = context.WithValue(ctx, xlog.ContextKey(RunIDContextKey), r.runID)
	r.logger.InfoContext(ctx, "bench run started",
		zap.Int("total", r.cfg.Total),
		zap.Int("rounds", r.cfg.Rounds),
		zap.String("workload", r.cfg.Workload.String()),
		zap.Strings("containers", r.cfg.Containers),
		zap.Bool("parallel", r.cfg.Parallel),
		zap.Uint64("seed", r.seed),
	)
	results := make([]RoundResult, 0, r.cfg.Rounds*len(r.cfg.Containers))
	var err error
	for round := 0; round < r.cfg.Rounds; round++ {
		if _err := ctx.Err(); _err != nil {
			return results, multierr.Append(err, infra.WrapErrorStackWithMessage(_err, "bench run canceled"))
		}
		keys := GenerateWorkload(r.cfg.Workload, r.cfg.Total, r.seed+uint64(round))
		roundResults, roundErr := r.runRound(ctx, round, keys)
		results = append(results, roundResults...)
		err = multierr.Append(err, roundErr)
	}
	return results, err
}

func (r *Runner) runRound(ctx context.Context, round int, keys []uint64) ([]RoundResult, error) {
	expected := UniqueKeys(keys)
	n := len(r.cfg.Containers)
	results := make([]RoundResult, n)
	errs := make([]error, n)
	if r.pool == nil {
		for i, name := range r.cfg.Containers {
			results[i], errs[i] = r.runContainer(ctx, round, name, keys, expected)
		}
	} else {
		wg := sync.WaitGroup{}
		for i, name := range r.cfg.Containers {
			i, name := i, name
			wg.Add(1)
			if err := r.pool.Submit(func() {
				defer wg.Done()
				results[i], errs[i] = r.runContainer(ctx, round, name, keys, expected)
			}); err != nil {
				wg.Done()
				errs[i] = infra.WrapErrorStackWithMessage(err, name+" task submit")
			}
		}
		wg.Wait()
	}

	var err error
	finished := make([]RoundResult, 0, n)
	for i, name := range r.cfg.Containers {
		switch {
		case errs[i] != nil:
			err = multierr.Append(err, errs[i])
		case results[i].Container != name:
			err = multierr.Append(err, infra.NewErrorStack(name+" task aborted in round "+strconv.Itoa(round)))
		default:
			finished = append(finished, results[i])
		}
	}
	return finished, err
}

func (r *Runner) runContainer(ctx context.Context, round int, name string, keys []uint64, expected int) (RoundResult, error) {
	res := RoundResult{}
	c, err := NewContainer(name, len(keys))
	if err != nil {
		return res, err
	}
	defer c.Release()

	var dups int64
	start := time.Now()
	for i, key := range keys {
		if !c.Insert(key) {
			dups++
		}
		if (i+1)%ctxCheckEvery == 0 && ctx.Err() != nil {
			return res, infra.WrapErrorStackWithMessage(ctx.Err(), name+" insertion canceled")
		}
		if r.cfg.VerifyInterval > 0 && (i+1)%r.cfg.VerifyInterval == 0 {
			if err = c.Verify(); err != nil {
				return res, infra.WrapErrorStackWithMessage(err, fmt.Sprintf("%s broken after %d keys", name, i+1))
			}
		}
	}
	elapsed := time.Since(start)

	err = multierr.Combine(
		c.Verify(),
		VerifyStrictlyIncreasing(name, c.Sorted()),
	)
	if c.Len() != expected {
		err = multierr.Append(err, infra.NewErrorStack(
			fmt.Sprintf("%s length %d, expected %d", name, c.Len(), expected)))
	}
	if err != nil {
		return res, infra.WrapErrorStackWithMessage(err, "wrong "+name)
	}

	res = RoundResult{
		RunID:      r.runID,
		Round:      round,
		Container:  name,
		Workload:   r.cfg.Workload,
		Total:      len(keys),
		Inserted:   int64(len(keys)) - dups,
		Duplicates: dups,
		Elapsed:    elapsed,
		RSSBytes:   r.sampleRSS(ctx),
	}
	r.meter.RecordInsert(ctx, name, elapsed, res.Inserted, res.Duplicates)
	r.logger.DebugContext(ctx, "bench round finished",
		zap.String("container", name),
		zap.Int("round", round),
		zap.Int64("inserted", res.Inserted),
		zap.Int64("duplicates", res.Duplicates),
		zap.Duration("elapsed", elapsed),
		zap.Uint64("rssBytes", res.RSSBytes),
	)
	return res, nil
}

// sampleRSS is the process resident set size, 0 if unavailable.
func (r *Runner) sampleRSS(ctx context.Context) uint64 {
	if r.proc == nil {
		return 0
	}
	mem, err := r.proc.MemoryInfoWithContext(ctx)
	if err != nil || mem == nil {
		return 0
	}
	return mem.RSS
}

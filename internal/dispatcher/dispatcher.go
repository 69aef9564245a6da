// Package dispatcher runs the per-iteration claim/execute loop: type
// selection by pending/slack, batch claim, sequential per-job
// heartbeat/handler/complete-or-fail, and signal-driven cooperative
// shutdown.
package dispatcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/model"
	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
	"github.com/yungbote/vendorqueue/internal/pkg/ctxutil"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// Handler processes one claimed job. It must not call the vendor HTTP
// client with an idempotency key unset for create-like operations,
// and should return a *errors.HandlerError on terminal
// failure so the dispatcher's Fail(id, message) carries a useful message.
type Handler func(ctx context.Context, job *model.Job) error

// HandlerRegistry resolves a Handler by job type; satisfied by
// handlers.Registry.
type HandlerRegistry interface {
	Get(jobType string) (Handler, bool)
}

// WatchdogFunc is invoked every 60 seconds in continuous mode; satisfied
// by watchdog.Controller.Evaluate.
type WatchdogFunc func(ctx context.Context)

const (
	killSwitchKey  = "dispatcher.kill_switch"
	pauseKeyPrefix = "queue_pause."
	capKeyPrefix   = "queue.max_concurrency."

	defaultCap      = 1
	maxClaimPerIter = 50

	idleBackoffBase = 500 * time.Millisecond
	idleBackoffMax  = 5 * time.Second

	watchdogInterval = 60 * time.Second
)

// Mode selects bounded-run-then-exit versus run-forever-with-idle-backoff.
type Mode int

const (
	ModeBounded Mode = iota
	ModeContinuous
)

// RunOptions configures one dispatcher invocation (mirrors the CLI flags).
type RunOptions struct {
	Mode         Mode
	Limit        int           // bounded mode: stop after this many jobs processed
	ExplicitType string        // empty means auto-select by pending/slack
	Timeout      time.Duration // 0 means no deadline beyond ctx's own
}

// Summary reports what one Run call did, for the CLI's exit-code mapping.
type Summary struct {
	Processed int
	Completed int
	Retried   int
	DeadLettered int
}

// Dispatcher owns one worker process's claim/execute loop.
type Dispatcher struct {
	repo     jobrepo.Repository
	handlers HandlerRegistry
	store    config.Store
	watchdog WatchdogFunc
	log      *logger.Logger
}

func New(repo jobrepo.Repository, handlers HandlerRegistry, store config.Store, watchdog WatchdogFunc, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		handlers: handlers,
		store:    store,
		watchdog: watchdog,
		log:      log.With("component", "dispatcher"),
	}
}

type typeStat struct {
	jobType string
	paused  bool
	cap     int64
	working int64
	pending int64
	slack   int64
}

// Run executes the per-iteration algorithm until the mode's stop condition
// is reached or ctx is cancelled (typically by a termination signal via
// RunWithSignals).
func (d *Dispatcher) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	types := model.AllJobTypes
	if opts.ExplicitType != "" {
		types = []string{opts.ExplicitType}
	}

	summary := Summary{}
	backoff := idleBackoffBase
	lastWatchdog := time.Time{}

	for {
		if ctx.Err() != nil {
			return summary, nil
		}
		if opts.Mode == ModeBounded && opts.Limit > 0 && summary.Processed >= opts.Limit {
			return summary, nil
		}

		if disabled, err := d.killSwitchSet(ctx); err != nil {
			d.log.Warn("failed to read kill switch, continuing", "error", err)
		} else if disabled {
			d.log.Info("kill switch set, stopping")
			return summary, nil
		}

		if d.watchdog != nil && opts.Mode == ModeContinuous && time.Since(lastWatchdog) >= watchdogInterval {
			d.watchdog(ctx)
			lastWatchdog = time.Now()
		}

		stats, err := d.computeStats(ctx, types)
		if err != nil {
			return summary, fmt.Errorf("compute dispatcher stats: %w", err)
		}

		remaining := maxClaimPerIter
		if opts.Mode == ModeBounded && opts.Limit > 0 {
			if r := opts.Limit - summary.Processed; r < remaining {
				remaining = r
			}
		}

		jobs, claimedFrom := d.claimFromEligible(ctx, stats, opts.ExplicitType, remaining)
		if len(jobs) == 0 {
			if opts.Mode == ModeBounded {
				return summary, nil
			}
			if !sleepOrDone(ctx, backoff) {
				return summary, nil
			}
			backoff *= 2
			if backoff > idleBackoffMax {
				backoff = idleBackoffMax
			}
			continue
		}

		d.log.Debug("claimed batch", "type", claimedFrom, "count", len(jobs))
		// Cooperative shutdown: a signal cancels ctx, but the batch already
		// claimed runs to completion; only the next iteration's claim is
		// skipped (checked at the top of the loop).
		for _, job := range jobs {
			d.runOne(context.WithoutCancel(ctx), job, &summary)
		}
		backoff = idleBackoffBase
	}
}

// RunWithSignals wraps Run with SIGINT/SIGTERM-triggered cooperative
// cancellation: no new claims after the signal, but the in-flight batch
// runs to completion.
func (d *Dispatcher) RunWithSignals(ctx context.Context, opts RunOptions) (Summary, error) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Run(sigCtx, opts)
}

func (d *Dispatcher) runOne(ctx context.Context, job *model.Job, summary *Summary) {
	ctx = ctxutil.WithTraceID(ctx, fmt.Sprintf("job:%d", job.ID))
	dbc := dbctx.Context{Ctx: ctx}
	summary.Processed++

	if err := d.repo.Heartbeat(dbc, job.ID); err != nil {
		d.log.Warn("heartbeat before handler failed", "job_id", job.ID, "error", err)
	}

	handler, ok := d.handlers.Get(job.Type)
	if !ok {
		d.fail(dbc, job, summary, fmt.Errorf("no handler registered for job type %q", job.Type))
		return
	}

	handlerErr := handler(ctx, job)

	if err := d.repo.Heartbeat(dbc, job.ID); err != nil {
		d.log.Warn("heartbeat after handler failed", "job_id", job.ID, "error", err)
	}

	if handlerErr != nil {
		d.fail(dbc, job, summary, handlerErr)
		return
	}

	if err := d.repo.Complete(dbc, job.ID); err != nil {
		d.log.Error("complete failed", "job_id", job.ID, "error", err)
		return
	}
	summary.Completed++
}

func (d *Dispatcher) fail(dbc dbctx.Context, job *model.Job, summary *Summary, handlerErr error) {
	if err := d.repo.Fail(dbc, job.ID, handlerErr); err != nil {
		d.log.Error("fail failed", "job_id", job.ID, "error", err)
		return
	}
	if job.Attempts+1 >= job.MaxAttempts {
		summary.DeadLettered++
	} else {
		summary.Retried++
	}
}

func (d *Dispatcher) killSwitchSet(ctx context.Context) (bool, error) {
	v, found, err := d.store.Get(ctx, killSwitchKey)
	if err != nil {
		return false, err
	}
	return found && v == "true", nil
}

func (d *Dispatcher) computeStats(ctx context.Context, types []string) ([]typeStat, error) {
	dbc := dbctx.Context{Ctx: ctx}
	stats := make([]typeStat, 0, len(types))
	for _, t := range types {
		paused, err := d.readBoolFlag(ctx, pauseKeyPrefix+t)
		if err != nil {
			return nil, err
		}
		concurrencyCap, err := d.readCap(ctx, t)
		if err != nil {
			return nil, err
		}
		working, err := d.repo.CountByStatusAndType(dbc, []model.JobStatus{model.JobWorking}, t)
		if err != nil {
			return nil, err
		}
		pending, err := d.repo.CountByStatusAndType(dbc, []model.JobStatus{model.JobPending}, t)
		if err != nil {
			return nil, err
		}
		slack := concurrencyCap - working
		if slack < 0 {
			slack = 0
		}
		stats = append(stats, typeStat{jobType: t, paused: paused, cap: concurrencyCap, working: working, pending: pending, slack: slack})
	}
	return stats, nil
}

func (d *Dispatcher) readBoolFlag(ctx context.Context, key string) (bool, error) {
	v, found, err := d.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return found && v == "true", nil
}

func (d *Dispatcher) readCap(ctx context.Context, jobType string) (int64, error) {
	v, found, err := d.store.Get(ctx, capKeyPrefix+jobType)
	if err != nil {
		return 0, err
	}
	if !found || v == "" {
		return defaultCap, nil
	}
	var n int64
	if _, scanErr := fmt.Sscanf(v, "%d", &n); scanErr != nil || n < 0 {
		return defaultCap, nil
	}
	return n, nil
}

// claimFromEligible orders eligible types by pending desc, slack desc, and
// claims from the first one that actually returns jobs: an explicit type
// only tries itself; auto-select tries the rest before giving up and
// idle-sleeping.
func (d *Dispatcher) claimFromEligible(ctx context.Context, stats []typeStat, explicitType string, remaining int) ([]*model.Job, string) {
	if remaining <= 0 {
		return nil, ""
	}
	dbc := dbctx.Context{Ctx: ctx}

	if explicitType != "" {
		for _, s := range stats {
			if s.jobType != explicitType {
				continue
			}
			if s.paused || s.slack <= 0 {
				return nil, ""
			}
			limit := remaining
			if s.slack < int64(limit) {
				limit = int(s.slack)
			}
			jobs, err := d.repo.ClaimBatch(dbc, limit, s.jobType)
			if err != nil {
				d.log.Error("claim batch failed", "type", s.jobType, "error", err)
				return nil, ""
			}
			return jobs, s.jobType
		}
		return nil, ""
	}

	ordered := make([]typeStat, len(stats))
	copy(ordered, stats)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].pending != ordered[j].pending {
			return ordered[i].pending > ordered[j].pending
		}
		return ordered[i].slack > ordered[j].slack
	})

	for _, s := range ordered {
		if s.paused || s.slack <= 0 {
			continue
		}
		limit := remaining
		if s.slack < int64(limit) {
			limit = int(s.slack)
		}
		jobs, err := d.repo.ClaimBatch(dbc, limit, s.jobType)
		if err != nil {
			d.log.Error("claim batch failed", "type", s.jobType, "error", err)
			continue
		}
		if len(jobs) > 0 {
			return jobs, s.jobType
		}
	}
	return nil, ""
}

// sleepOrDone sleeps for d unless ctx is cancelled first; returns false if
// ctx ended the wait.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ExitCode maps a Summary/error pair to the CLI's exit codes: 0 normal,
// 2 partial (some items retried or deferred), 3 fatal.
func ExitCode(summary Summary, err error) int {
	if err != nil {
		return 3
	}
	if summary.Retried > 0 || summary.DeadLettered > 0 {
		return 2
	}
	return 0
}


package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vnmchuo/hub-assistant/internal/provider"
)

// StartHealthChecks schedules SweepHealth every health interval. Calling it
// again while the schedule is running does nothing.
func (r *Router) StartHealthChecks() error {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()

	if r.sched != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	schedule := fmt.Sprintf("@every %s", r.healthInterval)
	if _, err := c.AddFunc(schedule, func() { r.SweepHealth(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule health sweep: %w", err)
	}
	c.Start()

	r.sched = c
	r.cancelSweep = cancel
	r.logger.Info().Dur("interval", r.healthInterval).Msg("health checks started")
	return nil
}

// StopHealthChecks cancels any running sweep and waits for it to return.
func (r *Router) StopHealthChecks() {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()

	if r.sched == nil {
		return
	}
	r.cancelSweep()
	<-r.sched.Stop().Done()
	r.sched = nil
	r.cancelSweep = nil
	r.logger.Info().Msg("health checks stopped")
}

func (r *Router) Close() error {
	r.StopHealthChecks()
	return nil
}

// SweepHealth re-checks every registration that is outside an active quota
// window and has not been checked within the minimum gap.
func (r *Router) SweepHealth(ctx context.Context) {
	now := r.now()

	type due struct {
		name string
		p    provider.Provider
	}
	var checks []due

	r.mu.Lock()
	for name, reg := range r.regs {
		if reg.QuotaExhausted && now.Before(reg.QuotaResetAt) {
			continue
		}
		if !reg.LastHealthCheck.IsZero() && now.Sub(reg.LastHealthCheck) < r.minCheckGap {
			continue
		}
		if reg.QuotaExhausted {
			reg.QuotaExhausted = false
			reg.QuotaResetAt = time.Time{}
		}
		checks = append(checks, due{name: name, p: reg.Provider})
	}
	r.mu.Unlock()

	for _, c := range checks {
		ok := c.p.CheckHealth(ctx)
		if ctx.Err() != nil {
			return
		}
		r.applyHealth(c.name, ok, c.p.Available())
	}
}

// applyHealth records a health verdict. A failed check on a provider that is
// still available means the endpoint refused on quota.
func (r *Router) applyHealth(name string, ok, available bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, exists := r.regs[name]
	if !exists {
		return
	}
	reg.LastHealthCheck = now

	switch {
	case ok:
		reg.Healthy = true
		reg.LastError = ""
	case available:
		reg.QuotaExhausted = true
		reg.QuotaResetAt = now.Add(r.quotaWindow)
		reg.LastError = "health check: quota exhausted"
		reg.LastErrorAt = now
	default:
		reg.Healthy = false
		reg.LastError = "health check failed"
		reg.LastErrorAt = now
	}
	r.setEligibleGauge(name, reg)
	r.logger.Debug().Str("provider", name).Bool("healthy", ok).Msg("health check")
}

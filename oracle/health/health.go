package health

import (
	"context"
	"sync"
	"time"

	"github.com/GPTx-global/flightoracle/oracle/log"
)

// Check is one named probe.
type Check interface {
	Check(ctx context.Context) error
	Name() string
}

type Status struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Checker runs its checks periodically and keeps the latest result of each.
type Checker struct {
	checks   map[string]Check
	status   map[string]Status
	mutex    sync.RWMutex
	interval time.Duration
	timeout  time.Duration
}

func NewChecker(interval time.Duration) *Checker {
	return &Checker{
		checks:   make(map[string]Check),
		status:   make(map[string]Status),
		interval: interval,
		timeout:  interval / 2,
	}
}

// AddCheck registers a check. It counts as healthy until it first runs.
func (hc *Checker) AddCheck(check Check) {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	name := check.Name()
	hc.checks[name] = check
	hc.status[name] = Status{Healthy: true, LastCheck: time.Now()}

	log.Debugf("health check added: %s", name)
}

// Start runs every check once immediately and then on each tick until ctx
// is done.
func (hc *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			hc.RunChecks(ctx)
		case <-ctx.Done():
			log.Debugf("health checker stopped")
			return
		}
	}
}

// RunChecks runs all checks concurrently and waits for them.
func (hc *Checker) RunChecks(ctx context.Context) {
	hc.mutex.RLock()
	checks := make([]Check, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()

			checkCtx := ctx
			if hc.timeout > 0 {
				var cancel context.CancelFunc
				checkCtx, cancel = context.WithTimeout(ctx, hc.timeout)
				defer cancel()
			}

			err := check.Check(checkCtx)

			status := Status{Healthy: err == nil, LastCheck: time.Now()}
			if err != nil {
				status.LastError = err.Error()
				log.Warnf("health check failed - %s: %v", check.Name(), err)
			}

			hc.mutex.Lock()
			hc.status[check.Name()] = status
			hc.mutex.Unlock()
		}(check)
	}
	wg.Wait()
}

func (hc *Checker) GetStatus() map[string]Status {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	result := make(map[string]Status, len(hc.status))
	for name, status := range hc.status {
		result[name] = status
	}

	return result
}

func (hc *Checker) IsHealthy() bool {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	for _, status := range hc.status {
		if !status.Healthy {
			return false
		}
	}

	return true
}

// FuncCheck adapts a function to Check.
type FuncCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

func NewFuncCheck(name string, checkFunc func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{
		name:      name,
		checkFunc: checkFunc,
	}
}

func (fc *FuncCheck) Check(ctx context.Context) error {
	return fc.checkFunc(ctx)
}

func (fc *FuncCheck) Name() string {
	return fc.name
}

/*
retrier.go - Background retry of incomplete cascades

PURPOSE:
  A cascade whose sibling writes partly failed stays recorded as an
  incomplete CascadeRun. The retrier periodically resumes every such run
  so a transient storage failure heals without an operator.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass resumes only the stages not yet persisted
  - Retried writes reuse the sibling ids fixed at derivation, so a stage
    that actually landed earlier is recognised and marked done

USAGE:
  retrier := NewCascadeRetrier(svc, logger)
  retrier.Interval = 5 * time.Minute
  retrier.Start()
  // ... later
  retrier.Stop()

SEE ALSO:
  - handlers.go: ResumeCascade endpoint (manual retry)
  - engine/cascade.go: Cascade saga
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-payroll/engine"
)

// CascadeRetrier resumes incomplete cascade runs on a timer.
type CascadeRetrier struct {
	Service  *engine.Service
	Logger   logrus.FieldLogger
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCascadeRetrier creates a retrier with a five minute interval.
func NewCascadeRetrier(svc *engine.Service, logger logrus.FieldLogger) *CascadeRetrier {
	return &CascadeRetrier{
		Service:  svc,
		Logger:   logger.WithField("component", "cascade_retrier"),
		Interval: 5 * time.Minute,
		Enabled:  true,
	}
}

// Start begins the retry loop.
func (cr *CascadeRetrier) Start() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if !cr.Enabled || cr.Interval <= 0 {
		cr.Logger.Info("disabled, not starting")
		return
	}
	if cr.ticker != nil {
		return
	}

	cr.ticker = time.NewTicker(cr.Interval)
	cr.stop = make(chan struct{})
	cr.wg.Add(1)

	go cr.run()

	cr.Logger.WithField("interval", cr.Interval.String()).Info("started")
}

// Stop stops the retry loop and waits for a pass in progress.
func (cr *CascadeRetrier) Stop() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.ticker != nil {
		cr.ticker.Stop()
		close(cr.stop)
		cr.wg.Wait()
		cr.ticker = nil
		cr.Logger.Info("stopped")
	}
}

func (cr *CascadeRetrier) run() {
	defer cr.wg.Done()

	// Run immediately on start
	cr.RunNow(context.Background())

	for {
		select {
		case <-cr.ticker.C:
			cr.RunNow(context.Background())
		case <-cr.stop:
			return
		}
	}
}

// RunNow performs one retry pass and returns how many runs completed.
func (cr *CascadeRetrier) RunNow(ctx context.Context) int {
	completed, err := cr.Service.ResumeIncomplete(ctx)
	if err != nil {
		cr.Logger.WithError(err).Error("retry pass failed")
		return completed
	}
	if completed > 0 {
		cr.Logger.WithField("completed", completed).Info("resumed incomplete cascades")
	}
	return completed
}

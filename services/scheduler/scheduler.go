// Package schedulersvc runs the periodic maintenance jobs.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/gigglesedu/giggles/core"
)

// Reconciler recomputes every course progress, see progress.Service.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

type Scheduler struct {
	scheduler  *gocron.Scheduler
	reconciler Reconciler
	logger     core.Logger
	timeout    time.Duration
}

func New(reconciler Reconciler, logger core.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:  s,
		reconciler: reconciler,
		logger:     logger,
		timeout:    time.Hour,
	}
}

// Start schedules the jobs and runs them in the background.
// The first reconciliation runs after one interval.
func (s *Scheduler) Start(conf core.SchedulerConfig) error {
	if conf.Disabled {
		return nil
	}
	if conf.ReconcileEvery <= 0 {
		return errors.New("scheduler: reconcile interval must be positive")
	}
	_, err := s.scheduler.Every(conf.ReconcileEvery).WaitForSchedule().Tag("reconcile").Do(s.reconcile)
	if err != nil {
		return errors.Wrap(err, "scheduling reconciliation")
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.Error("reconciling course progress", err)
		return
	}
	s.logger.Info(fmt.Sprintf("reconciled %d course progress rows in %s", n, time.Since(start)))
}

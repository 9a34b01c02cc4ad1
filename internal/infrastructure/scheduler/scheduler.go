package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/semmidev/donky/internal/infrastructure/logger"
)

// Scheduler runs jobs on cron specs with a seconds field. A job whose previous
// run is still in progress is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

func New(log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

func (s *Scheduler) AddJob(name, spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Infof("Scheduled job %s started", name)
		if err := job(s.ctx); err != nil {
			s.log.Errorf("Scheduled job %s failed: %v", name, err)
			return
		}
		s.log.Infof("Scheduled job %s finished", name)
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

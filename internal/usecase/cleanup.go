package usecase

import (
	"context"
	"sync"

	"github.com/semmidev/donky/internal/domain"
	"go.uber.org/multierr"
)

// Cleanup removes the containers and data volume of a restore job.
type Cleanup struct {
	runtime domain.ContainerRuntime
	logger  Logger
}

func NewCleanup(runtime domain.ContainerRuntime, logger Logger) *Cleanup {
	return &Cleanup{runtime: runtime, logger: logger}
}

// Execute removes both containers, then the volume they shared. A volume that
// is not force-reusable is left in place. Every step is attempted; the errors
// are combined.
func (uc *Cleanup) Execute(ctx context.Context, job domain.RestoreJob) error {
	uc.logger.Infof("[%s] Starting cleanup", job.Name)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, name := range []string{job.RestoreContainer, job.DatabaseContainer} {
		if name == "" {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			uc.logger.Infof("[%s] Removing container %s", job.Name, name)
			if err := uc.runtime.RemoveContainer(ctx, name, true); err != nil {
				uc.logger.Errorf("[%s] Failed to remove container %s: %v", job.Name, name, err)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()

	if job.Volume != "" && job.ForceVolume {
		uc.logger.Infof("[%s] Removing volume %s", job.Name, job.Volume)
		if err := uc.runtime.RemoveVolume(ctx, job.Volume, true); err != nil {
			uc.logger.Errorf("[%s] Failed to remove volume %s: %v", job.Name, job.Volume, err)
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		return errs
	}
	uc.logger.Infof("[%s] Cleanup completed", job.Name)
	return nil
}

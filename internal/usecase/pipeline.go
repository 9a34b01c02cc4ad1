package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/domain"
)

const cleanupTimeout = 5 * time.Minute

// SourceFactory builds the script source for an obfuscator.
type SourceFactory func(ctx context.Context, cfg config.ScriptConfig) (domain.ScriptSource, error)

// Pipeline runs one obfuscator end to end: resolve, fetch script, restore,
// start, obfuscate, clean up and notify.
type Pipeline struct {
	resolver  domain.BackupResolver
	restore   *Restore
	obfuscate *Obfuscate
	script    *Script
	cleanup   *Cleanup
	sources   SourceFactory
	notifiers []domain.Notifier
	logger    Logger
	workDir   string
}

func NewPipeline(
	resolver domain.BackupResolver,
	restore *Restore,
	obfuscate *Obfuscate,
	script *Script,
	cleanup *Cleanup,
	sources SourceFactory,
	notifiers []domain.Notifier,
	logger Logger,
	workDir string,
) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		restore:   restore,
		obfuscate: obfuscate,
		script:    script,
		cleanup:   cleanup,
		sources:   sources,
		notifiers: notifiers,
		logger:    logger,
		workDir:   workDir,
	}
}

// Execute runs the obfuscator and returns its report. A failed run returns a
// *domain.PipelineError naming the step that failed.
func (uc *Pipeline) Execute(ctx context.Context, name string, cfg config.ObfuscatorConfig) (domain.Report, error) {
	report := domain.Report{
		RunID:     uuid.NewString(),
		Job:       name,
		StartedAt: time.Now(),
	}
	uc.logger.Infof("[%s] Starting run %s", name, report.RunID)

	err := uc.run(ctx, name, cfg, &report)
	report.FinishedAt = time.Now()
	report.Err = err

	if err != nil {
		uc.logger.Errorf("[%s] Run %s failed: %v", name, report.RunID, err)
	} else {
		uc.logger.Infof("[%s] Run %s finished in %s: %d statement(s) executed",
			name, report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Second), report.Result.Executed)
	}

	uc.notify(name, report)
	return report, err
}

func (uc *Pipeline) run(ctx context.Context, name string, cfg config.ObfuscatorConfig, report *domain.Report) (err error) {
	fail := func(step string, cause error) error {
		return &domain.PipelineError{Job: name, RunID: report.RunID, Step: step, Err: cause}
	}

	backup, err := uc.resolver.Resolve(cfg.BackupType, cfg.BackupSource, cfg.SearchName)
	if err != nil {
		return fail("resolve", err)
	}
	report.Backup = backup

	job := cfg.WithBackup(name, backup)

	runDir := filepath.Join(uc.workDir, "donky-"+report.RunID)
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return fail("script", fmt.Errorf("%w: %v", domain.ErrConfiguration, err))
	}
	defer os.RemoveAll(runDir)

	source, err := uc.sources(ctx, cfg.Script)
	if err != nil {
		return fail("script", err)
	}
	statements, err := uc.script.Load(ctx, source, cfg.Script.Path, runDir)
	if err != nil {
		return fail("script", err)
	}

	// From here on containers may exist and must be cleaned up on every path.
	if !cfg.KeepContainers {
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			if cerr := uc.cleanup.Execute(cleanupCtx, job); cerr != nil && err == nil {
				err = fail("cleanup", cerr)
			}
		}()
	}

	restored, err := uc.restore.Execute(ctx, job)
	if err != nil {
		return fail("restore", err)
	}

	if err := restored.Database.Start(ctx); err != nil {
		return fail("start database", err)
	}

	result, err := uc.obfuscate.Execute(ctx, domain.ObfuscationJob{
		Statements:  statements,
		Endpoint:    cfg.Endpoint(),
		Workers:     cfg.Workers,
		PortTimeout: cfg.PortTimeout,
	})
	report.Result = result
	if err != nil {
		return fail("obfuscate", err)
	}

	return nil
}

func (uc *Pipeline) notify(name string, report domain.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, n := range uc.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			uc.logger.Warnf("[%s] Notification failed: %v", name, err)
		}
	}
}

// Step returns the failed step of a pipeline error, or "" for other errors.
func Step(err error) string {
	var perr *domain.PipelineError
	if errors.As(err, &perr) {
		return perr.Step
	}
	return ""
}

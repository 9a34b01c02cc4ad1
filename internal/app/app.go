package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/semmidev/donky/internal/adapter/compressor"
	"github.com/semmidev/donky/internal/adapter/container"
	"github.com/semmidev/donky/internal/adapter/database"
	"github.com/semmidev/donky/internal/adapter/notifier"
	"github.com/semmidev/donky/internal/adapter/storage"
	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/domain"
	"github.com/semmidev/donky/internal/infrastructure/logger"
	"github.com/semmidev/donky/internal/infrastructure/privilege"
	"github.com/semmidev/donky/internal/infrastructure/scheduler"
	"github.com/semmidev/donky/internal/usecase"
	"go.uber.org/multierr"
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	runtime   *container.EngineRuntime
	pipeline  *usecase.Pipeline
	cleanupUC *usecase.Cleanup
	scheduler *scheduler.Scheduler
}

// New drops privileges when app.user is set, connects to the container engine
// and wires the obfuscation pipeline. Local scripts are resolved relative to
// the directory of the config file.
func New(ctx context.Context, cfg *config.Config, configPath string) (*App, error) {
	var identity *privilege.Identity
	if cfg.App.User != "" {
		id, err := privilege.Drop(cfg.App.User)
		if err != nil {
			return nil, fmt.Errorf("failed to switch to user %s: %w", cfg.App.User, err)
		}
		identity = &id
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)
	if identity != nil {
		log.Infof("Running as %s (uid %d)", identity.Name, identity.UID)
	}
	log.Infof("Found %d obfuscator(s) configured", len(cfg.Obfuscators))

	runtime, err := container.NewRuntime(ctx, cfg.Backend(), cfg.App.Socket, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to connect to container engine: %w", err)
	}

	resolver := newBackupResolver(log)
	restoreUC := usecase.NewRestore(runtime, log)
	obfuscateUC := usecase.NewObfuscate(database.NewMySQLFactory(maxWorkers(cfg)+1), database.NewPortProbe(), log)
	scriptUC := usecase.NewScript(compressor.NewGzip(), log)
	cleanupUC := usecase.NewCleanup(runtime, log)

	baseDir := filepath.Dir(configPath)
	sources := func(ctx context.Context, sc config.ScriptConfig) (domain.ScriptSource, error) {
		return storage.NewSource(ctx, sc, baseDir)
	}

	notifiers := initializeNotifiers(cfg, log)

	pipeline := usecase.NewPipeline(
		resolver,
		restoreUC,
		obfuscateUC,
		scriptUC,
		cleanupUC,
		sources,
		notifiers,
		log,
		cfg.App.Tmp,
	)

	return &App{
		config:    cfg,
		logger:    log,
		runtime:   runtime,
		pipeline:  pipeline,
		cleanupUC: cleanupUC,
		scheduler: scheduler.New(log),
	}, nil
}

func initializeNotifiers(cfg *config.Config, log *logger.Logger) []domain.Notifier {
	var notifiers []domain.Notifier

	if cfg.Notify.Telegram.Enabled {
		tg, err := notifier.NewTelegram(cfg.Notify.Telegram)
		if err != nil {
			log.Errorf("Failed to initialize Telegram: %v", err)
		} else {
			notifiers = append(notifiers, tg)
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	return notifiers
}

func maxWorkers(cfg *config.Config) int {
	workers := cfg.App.Workers
	for _, o := range cfg.Obfuscators {
		if o.Workers > workers {
			workers = o.Workers
		}
	}
	return workers
}

// Obfuscate runs a single obfuscator by name.
func (a *App) Obfuscate(ctx context.Context, name string) (domain.Report, error) {
	o, err := a.config.Obfuscator(name)
	if err != nil {
		return domain.Report{Job: name, Err: err}, err
	}
	return a.pipeline.Execute(ctx, name, o)
}

// ObfuscateAll runs every configured obfuscator one after another. A failed
// job does not stop the rest; the errors are combined.
func (a *App) ObfuscateAll(ctx context.Context) ([]domain.Report, error) {
	var (
		reports []domain.Report
		errs    error
	)
	for _, name := range a.config.ObfuscatorNames() {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		report, err := a.Obfuscate(ctx, name)
		reports = append(reports, report)
		errs = multierr.Append(errs, err)
	}
	return reports, errs
}

// Cleanup removes the containers and volume left behind by an obfuscator,
// for example after a run with keep_containers.
func (a *App) Cleanup(ctx context.Context, name string) error {
	o, err := a.config.Obfuscator(name)
	if err != nil {
		return err
	}
	return a.cleanupUC.Execute(ctx, o.WithBackup(name, domain.BackupDescriptor{}))
}

// Run schedules every obfuscator with a schedule and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	scheduled := a.config.GetScheduledObfuscators()
	if len(scheduled) == 0 {
		return fmt.Errorf("%w: no obfuscator has a schedule", domain.ErrConfiguration)
	}

	for name, o := range scheduled {
		name, o := name, o
		a.logger.Infof("Scheduling %s: %s", name, o.Schedule)

		if err := a.scheduler.AddJob(name, o.Schedule, func(ctx context.Context) error {
			a.logger.Infof("=== Triggered scheduled obfuscation for %s ===", name)
			_, err := a.pipeline.Execute(ctx, name, o)
			return err
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started with %d job(s)", len(scheduled))

	<-ctx.Done()
	return nil
}

func (a *App) Logger() *logger.Logger {
	return a.logger
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	if err := a.runtime.Close(); err != nil {
		a.logger.Warnf("Failed to close container engine client: %v", err)
	}
	a.logger.Close()
}

package app

import (
	"context"
	"fmt"
	"io"

	"tenantvault/internal/adapter/artifact"
	"tenantvault/internal/adapter/compressor"
	"tenantvault/internal/adapter/jobstore"
	"tenantvault/internal/adapter/notifier"
	"tenantvault/internal/adapter/source"
	"tenantvault/internal/config"
	"tenantvault/internal/domain"
	"tenantvault/internal/infrastructure/logger"
	"tenantvault/internal/infrastructure/scheduler"
	"tenantvault/internal/usecase"
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	scheduler *scheduler.Scheduler

	store        *jobstore.SQLiteStore
	sourceCloser io.Closer
	artifacts    domain.ArtifactStore

	backupUC    *usecase.Backup
	restoreUC   *usecase.Restore
	verifierUC  *usecase.Verifier
	retentionUC *usecase.Retention

	oauth *GoogleOAuthService
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	store, err := jobstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	log.Infof("✓ Job store ready at %s", cfg.Store.Path)

	src, sourceCloser, err := buildSource(cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	artifacts, err := buildArtifactStore(cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	var notif domain.Notifier
	if cfg.Telegram.Enabled {
		tg, err := notifier.NewTelegram(&cfg.Telegram)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
		}
		notif = tg
		log.Infof("✓ Telegram notifications enabled")
	}

	comp := compressor.NewGzip()
	snapshotter := usecase.NewSnapshotter(src, comp, log.Named("snapshot"))
	backupUC := usecase.NewBackup(store, snapshotter, artifacts, notif, log.Named("backup"))
	restoreUC := usecase.NewRestore(store, src, artifacts, comp, notif, log.Named("restore"))
	verifierUC := usecase.NewVerifier(store, artifacts)
	retentionUC := usecase.NewRetention(store, artifacts, log.Named("retention"), cfg.Retention.Days)

	var oauth *GoogleOAuthService
	if cfg.Artifacts.Backend == "gdrive" && cfg.Artifacts.GDrive.ClientSecretFile != "" {
		oauth, err = NewGoogleOAuthService(log, cfg.Artifacts.GDrive.ClientSecretFile)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize oauth service: %w", err)
		}
	}

	return &App{
		config:       cfg,
		logger:       log,
		scheduler:    scheduler.New(log.Named("scheduler")),
		store:        store,
		sourceCloser: sourceCloser,
		artifacts:    artifacts,
		backupUC:     backupUC,
		restoreUC:    restoreUC,
		verifierUC:   verifierUC,
		retentionUC:  retentionUC,
		oauth:        oauth,
	}, nil
}

func buildSource(cfg *config.Config, log *logger.Logger) (domain.DataSource, io.Closer, error) {
	switch cfg.Source.Driver {
	case "sqlite":
		src, err := source.OpenSQLite(cfg.Source.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open tenant data source: %w", err)
		}
		log.Infof("✓ Connected to tenant data source (%s)", cfg.Source.DSN)
		return src, src, nil

	case "memory":
		log.Warnf("Using in-memory tenant data source, data will not survive restarts")
		return source.NewMemory(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported source driver %q", cfg.Source.Driver)
	}
}

func buildArtifactStore(cfg *config.Config, log *logger.Logger) (domain.ArtifactStore, error) {
	switch cfg.Artifacts.Backend {
	case "local":
		store, err := artifact.NewLocal(cfg.Artifacts.Local.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local artifact store: %w", err)
		}
		log.Infof("✓ Local artifact store at %s", cfg.Artifacts.Local.Path)
		return store, nil

	case "s3":
		store, err := artifact.NewS3(&cfg.Artifacts.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 artifact store: %w", err)
		}
		log.Infof("✓ S3 artifact store enabled (bucket: %s)", cfg.Artifacts.S3.Bucket)
		return store, nil

	case "gdrive":
		store, err := artifact.NewGDrive(&cfg.Artifacts.GDrive)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Drive artifact store: %w", err)
		}
		log.Infof("✓ Google Drive artifact store enabled")
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported artifact backend %q", cfg.Artifacts.Backend)
	}
}

// Backup exposes the backup manager to embedding callers such as an API layer.
func (a *App) Backup() *usecase.Backup { return a.backupUC }

// Restore exposes the restore orchestrator.
func (a *App) Restore() *usecase.Restore { return a.restoreUC }

// Verifier exposes the artifact verifier.
func (a *App) Verifier() *usecase.Verifier { return a.verifierUC }

// Run schedules the configured tenant backups and the retention sweep, then
// blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	tenants := a.config.EnabledTenants()
	a.logger.Infof("Application started with %d scheduled tenant(s)", len(tenants))

	for _, tenant := range tenants {
		tenantID := tenant.ID
		backupType := domain.BackupType(tenant.Type)
		if tenant.Type == "" {
			backupType = domain.BackupFull
		}
		if !backupType.Valid() {
			return fmt.Errorf("tenant %s: unsupported backup type %q", tenantID, tenant.Type)
		}

		jobName := fmt.Sprintf("backup-%s", tenantID)
		if err := a.scheduler.AddJob(jobName, tenant.Schedule, func(ctx context.Context) error {
			_, err := a.backupUC.Create(ctx, tenantID, backupType, "scheduled backup", "scheduler")
			return err
		}); err != nil {
			return fmt.Errorf("failed to schedule backup for tenant %s: %w", tenantID, err)
		}
	}

	if a.config.Retention.Days > 0 {
		if err := a.scheduler.AddJob("retention", a.config.Retention.Schedule, func(ctx context.Context) error {
			a.retentionUC.Execute(ctx, a.config.TenantIDs())
			return nil
		}); err != nil {
			return fmt.Errorf("failed to schedule retention: %w", err)
		}
	}

	if a.oauth != nil {
		addr := a.config.Artifacts.GDrive.AuthAddr
		if addr == "" {
			addr = ":8089"
		}
		if err := a.oauth.StartAuthServer(ctx, addr); err != nil {
			return fmt.Errorf("failed to start oauth server: %w", err)
		}
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started successfully")

	<-ctx.Done()
	return nil
}

// Shutdown stops scheduling, waits for in-flight jobs to settle and releases
// every resource the app owns.
func (a *App) Shutdown() {
	a.logger.Infof("Shutting down...")

	a.scheduler.Stop()
	a.backupUC.Stop()
	a.restoreUC.Wait()

	if a.oauth != nil {
		if err := a.oauth.Shutdown(context.Background()); err != nil {
			a.logger.Errorf("OAuth server shutdown failed: %v", err)
		}
	}

	if a.sourceCloser != nil {
		if err := a.sourceCloser.Close(); err != nil {
			a.logger.Errorf("Failed to close tenant data source: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Errorf("Failed to close job store: %v", err)
	}

	a.logger.Infof("Shutdown complete")
	a.logger.Close()
}

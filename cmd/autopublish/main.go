package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	apkadapter "github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/apk"
	fdroidadapter "github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/fdroid"
	githubadapter "github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/github"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/repolist"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/snapshot"
	sqliteadapter "github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/sqlite"
	httphandler "github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driving/http"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/application"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/config"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing credential).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Logging to stdout and the rotating log file.
	logger, logCloser, err := logging.Setup(logging.Options{
		Filename:   cfg.LogFile,
		Level:      cfg.LogLevel,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("config loaded",
		"root_dir", cfg.RootDir,
		"build_dir", cfg.BuildDir,
		"run_dir", cfg.RunDir,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"workers", cfg.Workers,
		"listen_addr", cfg.ListenAddr,
	)

	// 3. Directory preflight.
	if err := cfg.Preflight(); err != nil {
		return err
	}

	// 4. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. The repository list must be readable at startup.
	repos := repolist.NewFile(cfg.ReposFile)
	initial, err := repos.List(ctx)
	if err != nil {
		return err
	}
	slog.Info("repository list loaded", "file", cfg.ReposFile, "repos", len(initial))

	// 6. Open the ledger database and apply migrations.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("database ready", "path", db.Path(), "schema_version", version)

	// 7. Wire adapters.
	ledger := sqliteadapter.NewLedgerRepo(db)

	ghClient, err := githubadapter.NewClient(cfg.GitHubToken, githubadapter.Options{
		BaseURL:    cfg.GitHubAPIURL,
		RetryDelay: cfg.RetryDelay,
		Rate:       cfg.APIRate,
	})
	if err != nil {
		return err
	}

	target := fdroidadapter.NewTarget(fdroidadapter.Options{
		BuildDir:      cfg.BuildDir,
		ScreenshotDir: cfg.DataDir,
		AuthorName:    cfg.AuthorName,
		Category:      cfg.Category,
		License:       cfg.License,
	})
	builder := fdroidadapter.NewIndexBuilder(cfg.BuildDir, cfg.IndexCommand, cfg.IndexTimeout)

	rotator := snapshot.NewRotator(snapshot.Options{
		SourceDir: cfg.BuildRepoDir(),
		ServeDir:  cfg.RunRepoDir(),
		BackupDir: cfg.RunBackupDir(),
	})
	if err := rotator.Recover(ctx); err != nil {
		return err
	}

	// 8. Create and start the publish service.
	publishSvc := application.NewPublishService(
		ghClient,
		apkadapter.NewExtractor(),
		ledger,
		target,
		builder,
		rotator,
		repos,
		application.Options{
			DownloadDir: cfg.DownloadDir(),
			Interval:    cfg.PollInterval,
			Workers:     cfg.Workers,
		},
	)

	svcDone := make(chan struct{})
	go func() {
		publishSvc.Start(ctx)
		close(svcDone)
	}()

	// 9. Admin API, unless disabled.
	var srv *http.Server
	if cfg.ListenAddr != "" {
		apiHandler := httphandler.NewHandler(ledger, target, publishSvc, slog.Default())
		srv = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           httphandler.NewRouter(apiHandler, slog.Default()),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Manual publish requests wait for a full cycle including the index build.
			WriteTimeout: cfg.IndexTimeout + 5*time.Minute,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			slog.Info("http server starting", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		}()
	}

	slog.Info("autopublish started",
		"repos", len(initial),
		"poll_interval", cfg.PollInterval,
		"api", cfg.ListenAddr != "",
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}

	// The publish loop finishes its current step before returning.
	select {
	case <-svcDone:
	case <-shutdownCtx.Done():
		slog.Warn("publish service did not stop in time")
	}

	slog.Info("shutdown complete")
	return nil
}

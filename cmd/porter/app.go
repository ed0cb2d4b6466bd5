package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/config"
	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/exporter"
	"github.com/ALT-F4-LLC/porter/internal/importer"
	"github.com/ALT-F4-LLC/porter/internal/media"
	"github.com/ALT-F4-LLC/porter/internal/pipeline"
	"github.com/ALT-F4-LLC/porter/internal/session"
	"github.com/ALT-F4-LLC/porter/internal/sweeper"
)

// app holds the collaborators a command works with.
type app struct {
	cfg      *config.Config
	conn     *sql.DB
	log      *zap.Logger
	operator string

	catalog  *db.Catalog
	library  *media.Library
	sessions *session.Manager
	pipeline *pipeline.Pipeline
	sweeper  *sweeper.Sweeper

	closers []func() error
}

func openApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{cfg: cfg, conn: conn, log: log, operator: cfg.OperatorName()}
	a.closers = append(a.closers, conn.Close)

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	blobs, err := media.NewBlobStore(ctx, media.StoreConfig{
		Backend: cfg.MediaBackend,
		Dir:     cfg.MediaDir,
		BaseURL: cfg.MediaBaseURL,
		S3: media.S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.AWSAccessKeyID,
			SecretKey: cfg.AWSSecretKey,
			PublicURL: cfg.MediaBaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("opening media store: %w", err)
	}

	var store session.Store
	switch cfg.SessionBackend {
	case "redis":
		rs, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	default:
		store = session.NewSQLStore(a.conn)
	}

	fetcher := media.NewFetcher(media.FetcherOptions{
		Timeout:           cfg.FetchTimeout,
		RatePerSecond:     cfg.FetchRPS,
		AllowPrivateHosts: cfg.AllowPrivateHosts(),
	})

	a.catalog = db.NewCatalog(a.conn)
	a.library = media.NewLibrary(a.conn, blobs)
	a.sessions = session.NewManager(store, cfg.SessionTTL)

	exp := exporter.New(a.catalog, a.catalog, a.library, fetcher, a.sessions, exporter.Config{
		Dir:             cfg.ExportsDir,
		TmpDir:          cfg.TmpDir,
		SiteURL:         cfg.SiteURL,
		DownloadBaseURL: cfg.DownloadBaseURL,
	}, a.log.Named("export"))
	imp := importer.New(a.catalog, a.catalog, a.library, fetcher, a.sessions, importer.Config{
		Dir: cfg.ImportsDir,
	}, a.log.Named("import"))

	a.pipeline = pipeline.New(exp, imp, cfg, a.log.Named("pipeline"))
	a.sweeper = sweeper.New(store, sweeper.Dirs{
		Exports: cfg.ExportsDir,
		Imports: cfg.ImportsDir,
		Tmp:     cfg.TmpDir,
	}, 0, a.log.Named("sweep"))
	return nil
}

// Close releases everything the app opened, last opened first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

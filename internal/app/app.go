package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"ares/internal/config"
	"ares/internal/db"
	"ares/internal/directory"
	"ares/internal/effects"
	"ares/internal/engine"
	"ares/internal/gitrepo"
	"ares/internal/logging"
	"ares/internal/migrate"
	"ares/internal/notify"
	"ares/internal/outbox"
	"ares/internal/sourcecache"
	"ares/internal/workflow"
)

// App bundles the pieces a workspace needs: the database, the engine and the
// collaborators side effects run against.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *log.Logger
}

// Open opens and migrates the workspace database.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *log.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.Or(logger)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	return &App{Workspace: workspace, Config: cfg, DB: conn, Engine: e, Logger: logger}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Executor builds the side-effect executor described by the config. Without a
// mail host messages are logged; without a repository URL tag operations are
// skipped.
func (a *App) Executor() effects.Executor {
	cfg := a.Config
	logger := a.Logger
	dir := directory.NewStatic(cfg.Directory)

	var sender notify.Sender = notify.LogSender{Logger: logger.WithPrefix("mail")}
	if cfg.Mail.Host != "" {
		sender = notify.SMTP{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		}
	}
	var repository gitrepo.Repository = gitrepo.Disabled{}
	if cfg.Repository.URL != "" {
		repository = gitrepo.Client{
			BaseURL:    cfg.Repository.URL,
			Group:      cfg.Repository.Group,
			Token:      cfg.Repository.Token,
			Ref:        cfg.Repository.Ref,
			HTTPClient: &http.Client{Timeout: 15 * time.Second},
		}
	}
	return effects.Executor{
		Resolver: workflow.Resolver{
			Directory: dir,
			OnLookupError: func(f workflow.LookupFailure) {
				logger.Warn("directory lookup failed", "name", f.Name, "err", f.Err)
			},
		},
		Composer:   notify.Composer{From: cfg.Mail.From, Domain: cfg.Mail.Domain},
		Sender:     sender,
		Repository: repository,
		Sources:    sourcecache.Dir{Root: filepath.Join(db.Dir(a.Workspace), "sources")},
		Announce: notify.Envelope{
			To: cfg.Mail.AnnounceTo,
			CC: cfg.Mail.AnnounceCC,
		},
		Logger: logger,
	}
}

// Dispatcher returns an outbox dispatcher draining this workspace.
func (a *App) Dispatcher() *outbox.Dispatcher {
	return outbox.New(a.Engine.Repo, a.Executor(), a.Config.Outbox, a.Logger.WithPrefix("outbox"))
}

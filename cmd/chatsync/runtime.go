package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"chatsync/internal/api"
	"chatsync/internal/config"
	"chatsync/internal/domain"
	"chatsync/internal/engine"
	"chatsync/internal/obs"
	"chatsync/internal/push"
	"chatsync/internal/store/postgres"
	"chatsync/internal/store/sqlite"
)

// runtime is one wired session with its push connection and local store.
type runtime struct {
	cfg  *config.Config
	log  *slog.Logger
	sess *engine.Session
	push *push.Client
	db   *sql.DB
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, obs.NewLogger(cfg.Env, cfg.LogFile), nil
}

func newRuntime(cfg *config.Config, log *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}

	repo, err := rt.openStore()
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.Backend.APIBaseURL, cfg.AccountID,
		&http.Client{Timeout: cfg.Backend.HTTPTimeout}, log.With("component", "api"))

	router := push.NewRouter()
	rt.push = push.NewClient(cfg.Backend.SocketURL, cfg.AccountID, router, log, push.Options{})

	rt.sess, err = engine.NewSession(engine.Config{
		AccountID:      cfg.AccountID,
		PageSize:       cfg.Engine.PageSize,
		PendingTimeout: cfg.Engine.PendingTimeout,
		SearchDebounce: cfg.Engine.SearchDebounce,
		CallTimeout:    cfg.Backend.HTTPTimeout,
	}, engine.Deps{
		API:       client,
		Emitter:   rt.push,
		Router:    router,
		Selection: repo,
		Logger:    log,
	})
	if err != nil {
		rt.closeStore()
		return nil, fmt.Errorf("create session: %w", err)
	}
	rt.push.OnStateChange(rt.sess.ConnectionChanged)
	return rt, nil
}

func (rt *runtime) openStore() (domain.SelectionRepository, error) {
	switch rt.cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(rt.cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		rt.db = db
		return sqlite.NewSelectionRepo(db), nil
	case "postgres":
		db, err := postgres.Open(rt.cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		rt.db = db
		return postgres.NewSelectionRepo(db), nil
	}
	return nil, nil
}

func (rt *runtime) closeStore() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

// start connects the push channel in the background and loads the session.
func (rt *runtime) start(ctx context.Context) error {
	go func() {
		if err := rt.push.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.log.Error("push channel stopped", "err", err)
		}
	}()
	return rt.sess.Start(ctx)
}

func (rt *runtime) close() {
	_ = rt.sess.Close()
	rt.closeStore()
}

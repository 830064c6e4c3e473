package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iota-uz/utils/fs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/drydock-pm/drydock/modules/workitems"
	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/memory"
	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/persistence"
	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/composables"
	"github.com/drydock-pm/drydock/pkg/configuration"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

type globalOptions struct {
	store     string
	statePath string
	logLevel  string
}

// session is one command's view of the store. ctx carries the pool in postgres mode.
type session struct {
	ctx       context.Context
	module    *workitems.Module
	opts      configuration.WorkItemIDOptions
	pool      *pgxpool.Pool
	mem       *memory.Store
	statePath string
}

func newCLILogger(level string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("invalid --log-level: %w", err))
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	return logrus.NewEntry(logger).WithField("app", "workitem-ids"), nil
}

func openSession(ctx context.Context, g globalOptions) (*session, error) {
	logger, err := newCLILogger(g.logLevel)
	if err != nil {
		return nil, err
	}

	switch strings.TrimSpace(g.store) {
	case storeMemory:
		opts, err := configuration.WorkItemIDsFromEnv()
		if err != nil {
			return nil, withCode(exitUsage, err)
		}
		store, err := loadState(g.statePath)
		if err != nil {
			return nil, err
		}
		module, err := workitems.NewMemoryModule(store, opts, logger)
		if err != nil {
			return nil, withCode(exitUsage, err)
		}
		return &session{ctx: ctx, module: module, opts: opts, mem: store, statePath: g.statePath}, nil

	case storePostgres, "":
		conf := configuration.Use()
		pool, err := pgxpool.New(ctx, conf.Database.Opts)
		if err != nil {
			return nil, withCode(exitDB, fmt.Errorf("connect db: %w", err))
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, withCode(exitDB, fmt.Errorf("ping db: %w", err))
		}
		if conf.Database.AutoMigrate {
			if _, err := persistence.MigrateUp(ctx, pool); err != nil {
				pool.Close()
				return nil, withCode(exitDB, err)
			}
		}
		module, err := workitems.NewPostgresModule(conf.WorkItemIDs, logger)
		if err != nil {
			pool.Close()
			return nil, withCode(exitUsage, err)
		}
		return &session{
			ctx:    composables.WithPool(composables.WithLogger(ctx, logger), pool),
			module: module,
			opts:   conf.WorkItemIDs,
			pool:   pool,
		}, nil

	default:
		return nil, withCode(exitUsage, fmt.Errorf("unknown --store %q (want %s or %s)", g.store, storePostgres, storeMemory))
	}
}

// Close persists the memory store to its state file and releases the pool.
func (s *session) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.mem != nil && s.statePath != "" {
		return saveState(s.statePath, s.mem)
	}
	return nil
}

// loadState reads a backup-shaped JSON file into a memory store. A missing file starts empty.
func loadState(path string) (*memory.Store, error) {
	if path == "" || !fs.FileExists(path) {
		return memory.New(), nil
	}
	backup, err := services.ReadBackup(path)
	if err != nil {
		return nil, withCode(exitValidation, err)
	}
	records := make([]services.WorkItemRecord, 0, len(backup.Items))
	for _, it := range backup.Items {
		records = append(records, services.WorkItemRecord{
			ID:        it.OriginalID,
			ParentID:  it.ParentID,
			ProjectID: it.ProjectID,
			Title:     it.Title,
			CreatedAt: it.CreatedAt,
		})
	}
	return memory.New(records...), nil
}

func saveState(path string, store *memory.Store) error {
	items := store.Items()
	state := services.Backup{Timestamp: time.Now().UTC(), TotalItems: len(items), Items: make([]services.BackupItem, 0, len(items))}
	for _, it := range items {
		state.Items = append(state.Items, services.BackupItem{
			OriginalID: it.ID,
			ParentID:   it.ParentID,
			ProjectID:  it.ProjectID,
			Title:      it.Title,
			CreatedAt:  it.CreatedAt,
		})
	}
	return writeJSONFile(path, state)
}

package workitems

import (
	"github.com/sirupsen/logrus"

	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/memory"
	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/persistence"
	"github.com/drydock-pm/drydock/modules/workitems/presentation/controllers"
	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/configuration"
	"github.com/drydock-pm/drydock/pkg/server"
)

// Module wires the work item id services over one store.
type Module struct {
	Allocator *services.Allocator
	Migrator  *services.Migrator
	Items     *services.WorkItemService

	backupDir string
}

func NewModule(repo services.WorkItemRepository, tx services.Transactor, opts configuration.WorkItemIDOptions, logger *logrus.Entry) (*Module, error) {
	alloc, err := services.NewAllocator(repo, services.AllocatorOptions{
		Location:       opts.Location(),
		FallbackPrefix: opts.FallbackPrefix,
		InsertRetries:  opts.InsertRetries,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	migrator, err := services.NewMigrator(repo, tx, alloc, services.MigratorOptions{
		Location:      opts.Location(),
		ProgressEvery: opts.ProgressEvery,
		SampleSize:    opts.SampleSize,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	items, err := services.NewWorkItemService(repo, tx, alloc)
	if err != nil {
		return nil, err
	}
	return &Module{
		Allocator: alloc,
		Migrator:  migrator,
		Items:     items,
		backupDir: opts.BackupDir,
	}, nil
}

// NewPostgresModule expects the pgx pool in every request context (see composables.WithPool).
func NewPostgresModule(opts configuration.WorkItemIDOptions, logger *logrus.Entry) (*Module, error) {
	return NewModule(persistence.NewWorkItemRepository(), persistence.NewTransactor(), opts, logger)
}

func NewMemoryModule(store *memory.Store, opts configuration.WorkItemIDOptions, logger *logrus.Entry) (*Module, error) {
	return NewModule(store, store, opts, logger)
}

func (m *Module) Controllers() []server.Controller {
	return []server.Controller{
		controllers.NewWorkItemIDsController(m.Allocator, m.Items),
		controllers.NewWorkItemIDsAdminController(m.Migrator, m.backupDir),
	}
}

func (m *Module) Name() string {
	return "workitems"
}

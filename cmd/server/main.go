package main

import (
	"context"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drydock-pm/drydock/internal/server"
	"github.com/drydock-pm/drydock/modules/workitems"
	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/persistence"
	"github.com/drydock-pm/drydock/pkg/configuration"
	"github.com/drydock-pm/drydock/pkg/logging"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	if conf.Database.AutoMigrate {
		applied, err := persistence.MigrateUp(ctx, pool)
		if err != nil {
			log.Fatalf("failed to apply schema migrations: %v", err)
		}
		logger.WithField("versions", applied).Info("schema migrations applied")
	}

	module, err := workitems.NewPostgresModule(conf.WorkItemIDs, logger.WithField("module", "workitems"))
	if err != nil {
		log.Fatalf("failed to load module: %v", err)
	}

	srv := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Module:        module,
		Pool:          pool,
	})

	log.Printf("Listening on: %s\n", conf.Origin)
	if err := srv.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

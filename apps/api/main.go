package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/gigglesedu/giggles/apps/api/echo"
	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/services/email"
	"github.com/gigglesedu/giggles/services/logger"
	"github.com/gigglesedu/giggles/services/scheduler"
	"github.com/gigglesedu/giggles/storage/database"
	"github.com/gigglesedu/giggles/storage/database/sqlboiler"
	"github.com/gigglesedu/giggles/storage/database/sqlx"
)

func main() {
	conf := core.Conf

	// =========================================================================
	// Set up Dependencies

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	usrSvc := user.NewService(db, sqlxrepos.NewUserRepository(db), mailSvc)
	catalogSvc := catalog.NewService(db, sqlxrepos.NewCatalogRepository(db))
	progressSvc := progress.NewService(
		db,
		sqlxrepos.NewProgressRepository(db),
		boiledrepos.NewReportRepository(db),
		usrSvc,
		catalogSvc,
		mailSvc,
		logger,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	if !conf.Scheduler.Disabled {
		sched := schedulersvc.New(progressSvc, logger)
		if err = sched.Start(conf.Scheduler); err != nil {
			logger.Fatal(fmt.Sprintf("starting scheduler: %v", err), err)
		}
		defer sched.Stop()
	}

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Address, shutdown, &echoapi.Deps{
		Logger:      logger,
		UserSvc:     usrSvc,
		CatalogSvc:  catalogSvc,
		ProgressSvc: progressSvc,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

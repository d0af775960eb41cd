package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/services/email"
	"github.com/gigglesedu/giggles/services/logger"
	"github.com/gigglesedu/giggles/storage/database"
	"github.com/gigglesedu/giggles/storage/database/sqlboiler"
	"github.com/gigglesedu/giggles/storage/database/sqlx"
)

func main() {
	conf := core.Conf
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	mailSvc := emailsvc.NewConsoleService()
	usrRepo := sqlxrepos.NewUserRepository(db)
	catalogSvc := catalog.NewService(db, sqlxrepos.NewCatalogRepository(db))
	usrSvc := user.NewService(db, usrRepo, mailSvc)

	cli := &commandLine{
		db:      db,
		engine:  conf.Database.Engine,
		usrRepo: usrRepo,
		progressSvc: progress.NewService(
			db,
			sqlxrepos.NewProgressRepository(db),
			boiledrepos.NewReportRepository(db),
			usrSvc,
			catalogSvc,
			mailSvc,
			logger,
		),
	}
	err = cli.rootCmd().Execute()
	_ = db.Close()
	if err != nil {
		os.Exit(1)
	}
}

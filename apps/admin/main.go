package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/family"
	"github.com/oiclass/oiclass/core/integration"
	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/progress"
	"github.com/oiclass/oiclass/core/user"
	appfs "github.com/oiclass/oiclass/fs"
	emailsvc "github.com/oiclass/oiclass/services/email"
	logsvc "github.com/oiclass/oiclass/services/logger"
	"github.com/oiclass/oiclass/services/notifybus"
	"github.com/oiclass/oiclass/services/scraper"
	"github.com/oiclass/oiclass/storage/database"
	sqlxrepos "github.com/oiclass/oiclass/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	zl, err := logsvc.NewZapLogger(conf.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zl.Sync()

	ctx := context.Background()
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(ctx, db))

	cli := newCommandLine(conf, db, zl)
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		zl.Sync()
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, db *sqlx.DB, logger core.Logger) *commandLine {
	validate := newValidator()
	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, false, logger)
	mailSvc := emailsvc.NewService(conf, tmpls, logger)

	// the CLI has no stream clients; notifications are only stored
	notifSvc := notification.NewService(db, sqlxrepos.NewNotificationRepository(db), notifybus.NewLocalBus(notifybus.NewHub(logger)), logger)
	usrRepo := sqlxrepos.NewUserRepository(db)
	videoRepo := sqlxrepos.NewVideoRepository(db)
	usrSvc := user.NewService(db, usrRepo, mailSvc, conf)
	familySvc := family.NewService(sqlxrepos.NewFamilyRepository(db), usrSvc, notifSvc, validate, logger)
	knowledgeSvc := knowledge.NewService(sqlxrepos.NewKnowledgeRepository(db), videoRepo, validate)
	progressSvc := progress.NewService(db, sqlxrepos.NewProgressRepository(db), knowledgeSvc, familySvc, validate)
	luogu, gesp := scraper.New(conf.Scraper, logger)

	return &commandLine{
		db:        db,
		usrRepo:   usrRepo,
		videoRepo: videoRepo,
		integrationSvc: integration.NewService(integration.Deps{
			DB:        db,
			Repo:      sqlxrepos.NewGespRepository(db),
			Luogu:     luogu,
			Gesp:      gesp,
			Users:     usrSvc,
			Knowledge: knowledgeSvc,
			Progress:  progressSvc,
			Vis:       familySvc,
			Notifier:  notifSvc,
			Validate:  validate,
			Logger:    logger,
		}),
	}
}

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	progress.InitValidators(validate, translator)
	return validate
}

func errAndDie(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "admin"))
		os.Exit(1)
	}
}

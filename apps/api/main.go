package main

import (
	"context"
	"expvar"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	echoapi "github.com/oiclass/oiclass/apps/api/echo"
	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/blog"
	"github.com/oiclass/oiclass/core/contest"
	"github.com/oiclass/oiclass/core/family"
	"github.com/oiclass/oiclass/core/integration"
	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/progress"
	"github.com/oiclass/oiclass/core/report"
	"github.com/oiclass/oiclass/core/user"
	"github.com/oiclass/oiclass/core/video"
	appfs "github.com/oiclass/oiclass/fs"
	emailsvc "github.com/oiclass/oiclass/services/email"
	logsvc "github.com/oiclass/oiclass/services/logger"
	"github.com/oiclass/oiclass/services/mediastore"
	"github.com/oiclass/oiclass/services/notifybus"
	"github.com/oiclass/oiclass/services/scraper"
	"github.com/oiclass/oiclass/services/transcoder"
	"github.com/oiclass/oiclass/storage/database"
	sqlxrepos "github.com/oiclass/oiclass/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up logger
	zl, err := logsvc.NewZapLogger(conf.Env)
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up DB
	db, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal("setting up database", err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info("application initializing", "version", conf.Build, "env", conf.Env)
	defer logger.Info("application stopped")

	validate, translator := echoapi.NewValidator()
	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.TestMode, logger)
	mailSvc := emailsvc.NewService(conf, tmpls, logger)

	// notifications
	hub := notifybus.NewHub(logger)
	defer hub.Close()
	bus, err := notifybus.New(ctx, conf.Redis, hub, logger)
	if err != nil {
		logger.Fatal("setting up notification bus", err)
	}
	defer bus.Close()
	if err = bus.Start(ctx); err != nil {
		logger.Fatal("starting notification bus", err)
	}

	// repos
	usrRepo := sqlxrepos.NewUserRepository(db)
	videoRepo := sqlxrepos.NewVideoRepository(db)

	// services
	notifSvc := notification.NewService(db, sqlxrepos.NewNotificationRepository(db), bus, logger)
	usrSvc := user.NewService(db, usrRepo, mailSvc, conf)
	familySvc := family.NewService(sqlxrepos.NewFamilyRepository(db), usrSvc, notifSvc, validate, logger)
	knowledgeSvc := knowledge.NewService(sqlxrepos.NewKnowledgeRepository(db), videoRepo, validate)
	progressSvc := progress.NewService(db, sqlxrepos.NewProgressRepository(db), knowledgeSvc, familySvc, validate)
	blogSvc := blog.NewService(sqlxrepos.NewBlogRepository(db), notifSvc, validate, logger)
	contestSvc := contest.NewService(sqlxrepos.NewContestRepository(db), usrSvc, notifSvc, validate, logger)
	reportSvc := report.NewService(
		sqlxrepos.NewReportRepository(db), usrSvc, progressSvc, familySvc, notifSvc, mailSvc, validate, logger,
	)

	luogu, gesp := scraper.New(conf.Scraper, logger)
	integrationSvc := integration.NewService(integration.Deps{
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
	})

	// video pipeline
	store, err := mediastore.New(ctx, conf.Media, logger)
	if err != nil {
		logger.Fatal("setting up media store", err)
	}
	pipeline := video.NewPipeline(videoRepo, transcoder.NewFFmpeg(conf.Media, logger), store, notifSvc, conf.Media, logger)
	defer pipeline.Close()
	if n, err := pipeline.Resume(ctx); err != nil {
		logger.Error("resuming transcodes", err)
	} else if n > 0 {
		logger.Info("resumed transcodes", "count", n)
	}
	videoSvc := video.NewService(db, videoRepo, pipeline, store, validate, conf.Media, logger)

	var hlsRoot string
	if local, ok := store.(*mediastore.Local); ok {
		hlsRoot = local.Root()
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error("debug server closed", err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan struct{}, 1)
	server := echoapi.NewServer(&echoapi.Options{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		SignalShutdown: func() {
			select {
			case shutdown <- struct{}{}:
			default:
			}
		},
		UserSvc:         usrSvc,
		KnowledgeSvc:    knowledgeSvc,
		ProgressSvc:     progressSvc,
		BlogSvc:         blogSvc,
		FamilySvc:       familySvc,
		NotificationSvc: notifSvc,
		Hub:             hub,
		ContestSvc:      contestSvc,
		ReportSvc:       reportSvc,
		VideoSvc:        videoSvc,
		IntegrationSvc:  integrationSvc,
		HLSRoot:         hlsRoot,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API listening", "host", conf.Server.Host)
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", err)
		}
	case <-ctx.Done():
		logger.Info("start shutdown", "cause", "signal")
	case <-shutdown:
		logger.Info("start shutdown", "cause", "shutdown error")
	}

	// give outstanding requests a deadline for completion
	sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	// streams never finish on their own
	hub.Close()
	if err := server.Stop(sctx); err != nil {
		logger.Error("could not stop server gracefully", err)
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return db, nil
}

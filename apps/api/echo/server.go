package echoapi

import (
	"context"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
	"github.com/oiclass/oiclass/services/notifybus"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		SignalShutdown func()

		UserSvc         user.Service
		KnowledgeSvc    knowledge.Service
		ProgressSvc     progress.Service
		BlogSvc         blog.Service
		FamilySvc       family.Service
		NotificationSvc notification.Service
		Hub             *notifybus.Hub
		ContestSvc      contest.Service
		ReportSvc       report.Service
		VideoSvc        video.Service
		IntegrationSvc  integration.Service

		// HLSRoot is the local directory served under Media.PublicURL + "/hls"; empty disables it.
		HLSRoot string
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

// NewValidator returns a validator with every custom tag and its english translations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	progress.InitValidators(validate, translator)
	return validate, translator
}

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	if s.opts.HLSRoot != "" {
		s.app.Static(strings.TrimSuffix(conf.Media.PublicURL, "/")+"/hls", s.opts.HLSRoot)
	}

	api := s.app.Group("/api")
	auth := authMiddleware(conf, s.opts.UserSvc, false)
	optAuth := authMiddleware(conf, s.opts.UserSvc, true)

	registerUserAPI(api, auth, s.opts.UserSvc, s.opts.Validate, conf)
	registerKnowledgeAPI(api, auth, s.opts.KnowledgeSvc)
	registerProgressAPI(api, auth, s.opts.ProgressSvc)
	registerBlogAPI(api, auth, optAuth, s.opts.BlogSvc)
	registerFamilyAPI(api, auth, s.opts.FamilySvc)
	registerNotificationAPI(api, auth, s.opts.NotificationSvc, s.opts.Hub, s.opts.Logger)
	registerContestAPI(api, auth, s.opts.ContestSvc)
	registerReportAPI(api, auth, s.opts.ReportSvc)
	registerVideoAPI(api, auth, s.opts.VideoSvc)
	registerIntegrationAPI(api, auth, s.opts.IntegrationSvc)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Conf.Server.Host)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to OIClass API!")
}

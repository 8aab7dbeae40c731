package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	. "github.com/oiclass/oiclass/apps/api/echo"
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
	"github.com/oiclass/oiclass/services/mediastore"
	"github.com/oiclass/oiclass/services/notifybus"
	sqlxrepos "github.com/oiclass/oiclass/storage/database/sqlx"
	"github.com/oiclass/oiclass/testutil"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	defaultPage     = core.Pagination{Page: 1, PageSize: core.MaxPageSize}
)

type env struct {
	app     Server
	conf    *core.Config
	db      *sqlx.DB
	usrRepo user.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	hub     *notifybus.Hub
	queue   *fakeQueue
	luogu   *fakeLuogu
	gesp    *fakeGesp

	notifSvc     notification.Service
	knowledgeSvc knowledge.Service
	familySvc    family.Service
	progressSvc  progress.Service
	blogSvc      blog.Service
	videoRepo    video.Repository
}

func setup(t *testing.T) *env {
	t.Helper()
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(t)

	// set up DB & repos
	db := testutil.PrepareDB(t)
	e := &env{
		conf:      conf,
		db:        db,
		usrRepo:   sqlxrepos.NewUserRepository(db),
		videoRepo: sqlxrepos.NewVideoRepository(db),
		hub:       notifybus.NewHub(logger),
		queue:     new(fakeQueue),
		luogu:     &fakeLuogu{problems: map[string]integration.LuoguProblem{}, users: map[string]integration.LuoguUser{}},
		gesp:      &fakeGesp{records: map[string][]integration.GespExam{}},
	}
	t.Cleanup(e.hub.Close)

	// set up services
	validate, translator := NewValidator()
	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	e.mailSvc = emailsvc.NewConsoleServiceMock(conf, tmpls, logger)

	e.notifSvc = notification.NewService(db, sqlxrepos.NewNotificationRepository(db), notifybus.NewLocalBus(e.hub), logger)
	usrSvc := user.NewServiceMock(db, e.usrRepo, e.mailSvc, conf)
	e.familySvc = family.NewService(sqlxrepos.NewFamilyRepository(db), usrSvc, e.notifSvc, validate, logger)
	e.knowledgeSvc = knowledge.NewService(sqlxrepos.NewKnowledgeRepository(db), e.videoRepo, validate)
	e.progressSvc = progress.NewService(db, sqlxrepos.NewProgressRepository(db), e.knowledgeSvc, e.familySvc, validate)
	e.blogSvc = blog.NewService(sqlxrepos.NewBlogRepository(db), e.notifSvc, validate, logger)
	contestSvc := contest.NewService(sqlxrepos.NewContestRepository(db), usrSvc, e.notifSvc, validate, logger)
	reportSvc := report.NewService(
		sqlxrepos.NewReportRepository(db), usrSvc, e.progressSvc, e.familySvc, e.notifSvc, e.mailSvc, validate, logger,
	)
	integrationSvc := integration.NewService(integration.Deps{
		DB:        db,
		Repo:      sqlxrepos.NewGespRepository(db),
		Luogu:     e.luogu,
		Gesp:      e.gesp,
		Users:     usrSvc,
		Knowledge: e.knowledgeSvc,
		Progress:  e.progressSvc,
		Vis:       e.familySvc,
		Notifier:  e.notifSvc,
		Validate:  validate,
		Logger:    logger,
	})
	store := mediastore.NewLocal(conf.Media)
	videoSvc := video.NewService(db, e.videoRepo, e.queue, store, validate, conf.Media, logger)

	// set up server
	e.app = NewServer(&Options{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		KnowledgeSvc:    e.knowledgeSvc,
		ProgressSvc:     e.progressSvc,
		BlogSvc:         e.blogSvc,
		FamilySvc:       e.familySvc,
		NotificationSvc: e.notifSvc,
		Hub:             e.hub,
		ContestSvc:      contestSvc,
		ReportSvc:       reportSvc,
		VideoSvc:        videoSvc,
		IntegrationSvc:  integrationSvc,
		HLSRoot:         store.Root(),
	})
	return e
}

func (e *env) createUser(t *testing.T, name, uname string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, e.usrRepo, name, uname, uname+"@test.cd", "", roles, true)
}

// fakes

type fakeQueue struct {
	mu     sync.Mutex
	videos []video.Video
}

func (q *fakeQueue) Enqueue(v video.Video) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.videos = append(q.videos, v)
}

func (q *fakeQueue) Enqueued() []video.Video {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]video.Video(nil), q.videos...)
}

var errScraper = errors.New("scraper: not found")

type fakeLuogu struct {
	problems map[string]integration.LuoguProblem
	users    map[string]integration.LuoguUser
}

func (f *fakeLuogu) Problem(_ context.Context, pid string) (integration.LuoguProblem, error) {
	if p, ok := f.problems[pid]; ok {
		return p, nil
	}
	return integration.LuoguProblem{}, errScraper
}

func (f *fakeLuogu) User(_ context.Context, uid string) (integration.LuoguUser, error) {
	if u, ok := f.users[uid]; ok {
		return u, nil
	}
	return integration.LuoguUser{}, errScraper
}

type fakeGesp struct {
	records map[string][]integration.GespExam
}

func (f *fakeGesp) Records(_ context.Context, candidateID string) ([]integration.GespExam, error) {
	return f.records[candidateID], nil
}

// http helpers

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.app.ServeHTTP(rec, req)
	return rec
}

func (e *env) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// decode unmarshals the recorded body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/oiclass/oiclass/apps/api/echo"
	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/family"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/user"
	sqlxrepos "github.com/oiclass/oiclass/storage/database/sqlx"
)

func (e *env) notifications(t *testing.T, usr user.User) []notification.Notification {
	t.Helper()
	page, err := e.notifSvc.List(context.Background(), usr.ID, notification.QueryFilter{}, defaultPage)
	require.NoError(t, err)
	return page.Results
}

func kinds(notifs []notification.Notification) []string {
	out := make([]string, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, n.Kind)
	}
	return out
}

func Test_familyApi(t *testing.T) {
	e := setup(t)
	parent := e.createUser(t, "Parent", "parent", user.RoleParent)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	other := e.createUser(t, "Other Student", "other", user.RoleStudent)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	parentToken := getToken(t, e.conf, parent)
	studentToken := getToken(t, e.conf, student)
	otherToken := getToken(t, e.conf, other)

	request := func(student string) []byte { return []byte(`{"student":"` + student + `","message":"It's me, dad"}`) }
	e.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/bindings", wantCode: http.StatusUnauthorized},
		{
			name: "parents only", method: http.MethodPost, path: "/api/bindings", token: studentToken, body: request("other"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: family.ErrParentsOnly.Error()}),
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/api/bindings", token: parentToken, body: request("nobody"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student": "student not found"}),
		},
		{
			name: "not a student", method: http.MethodPost, path: "/api/bindings", token: parentToken, body: request(teacher.Username),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student": family.ErrNotAStudent.Error()}),
		},
	})

	rec := e.do(http.MethodPost, "/api/bindings", parentToken, request("STUDENT@test.cd"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var req family.BindingRequest
	decode(t, rec, &req)
	assert.Equal(t, family.StatusPending, req.Status)
	assert.Equal(t, student.ID, req.StudentID)
	assert.Equal(t, []string{notification.KindBindingRequested}, kinds(e.notifications(t, student)))

	e.run(t, []httpTest{
		{
			name: "duplicate request", method: http.MethodPost, path: "/api/bindings", token: parentToken, body: request("student"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student": family.ErrAlreadyRequested.Error()}),
		},
		{name: "parent cannot accept", method: http.MethodPost, path: "/api/bindings/" + req.ID + "/accept", token: parentToken, wantCode: http.StatusNotFound},
		{name: "other student cannot accept", method: http.MethodPost, path: "/api/bindings/" + req.ID + "/accept", token: otherToken, wantCode: http.StatusNotFound},
		{name: "unknown request", method: http.MethodPost, path: "/api/bindings/lol/accept", token: studentToken, wantCode: http.StatusNotFound},
		{name: "not bound yet", path: "/api/bindings/children", token: parentToken, wantData: marchallList(t)},
		{name: "accept", method: http.MethodPost, path: "/api/bindings/" + req.ID + "/accept", token: studentToken},
		{
			name: "accept twice", method: http.MethodPost, path: "/api/bindings/" + req.ID + "/accept", token: studentToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: family.ErrInvalidTransition.Error()}),
		},
		{name: "accepted cannot be cancelled", method: http.MethodPost, path: "/api/bindings/" + req.ID + "/cancel", token: parentToken, wantCode: http.StatusBadRequest},
	})
	assert.Equal(t, []string{notification.KindBindingAccepted}, kinds(e.notifications(t, parent)))

	t.Run("children", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/api/bindings/children", parentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var children []user.User
		decode(t, rec, &children)
		require.Len(t, children, 1)
		assert.Equal(t, student.ID, children[0].ID)
	})

	t.Run("list by status", func(t *testing.T) {
		var reqs []family.BindingRequest
		decode(t, e.do(http.MethodGet, "/api/bindings?status=accepted", studentToken), &reqs)
		require.Len(t, reqs, 1)
		assert.Equal(t, req.ID, reqs[0].ID)
		assert.Equal(t, "Parent", reqs[0].ParentName)
		assert.NotNil(t, reqs[0].RespondedAt)

		decode(t, e.do(http.MethodGet, "/api/bindings?status=pending", parentToken), &reqs)
		assert.Empty(t, reqs)
		decode(t, e.do(http.MethodGet, "/api/bindings", otherToken), &reqs)
		assert.Empty(t, reqs)
	})

	t.Run("reject and cancel", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/api/bindings", parentToken, request("other"))
		require.Equal(t, http.StatusCreated, rec.Code)
		var r family.BindingRequest
		decode(t, rec, &r)
		assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/bindings/"+r.ID+"/reject", otherToken).Code)

		// a rejected request can be made again
		rec = e.do(http.MethodPost, "/api/bindings", parentToken, request("other"))
		require.Equal(t, http.StatusCreated, rec.Code)
		decode(t, rec, &r)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/bindings/"+r.ID+"/cancel", otherToken).Code)
		assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/bindings/"+r.ID+"/cancel", parentToken).Code)
		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/bindings/"+r.ID+"/accept", otherToken).Code)
	})

	t.Run("unbind", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/bindings/"+req.ID+"/unbind", otherToken).Code)
		rec := e.do(http.MethodPost, "/api/bindings/"+req.ID+"/unbind", studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var r family.BindingRequest
		decode(t, rec, &r)
		assert.Equal(t, family.StatusCancelled, r.Status)

		assert.Contains(t, kinds(e.notifications(t, parent)), notification.KindBindingCancelled)
		checkCodeAndData(t, httpTest{wantData: marchallList(t)}, e.do(http.MethodGet, "/api/bindings/children", parentToken))
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/progress?student="+student.ID, parentToken).Code)
	})
}

// staleFamilyRepo never sees open requests, like a second request whose
// lookup ran before the first one committed.
type staleFamilyRepo struct {
	family.Repository
}

func (staleFamilyRepo) FindOpenRequest(context.Context, string, string, ...core.DBExecutor) (family.BindingRequest, error) {
	return family.BindingRequest{}, family.ErrNotFound
}

func Test_familyService_concurrentRequests(t *testing.T) {
	e := setup(t)
	parent := e.createUser(t, "Parent", "parent", user.RoleParent)
	student := e.createUser(t, "Student", "student", user.RoleStudent)

	validate, _ := NewValidator()
	usrSvc := user.NewServiceMock(e.db, e.usrRepo, e.mailSvc, e.conf)
	svc := family.NewService(staleFamilyRepo{sqlxrepos.NewFamilyRepository(e.db)}, usrSvc, e.notifSvc, validate, core.NopLogger{})

	ctx := context.Background()
	_, err := svc.Request(ctx, parent, family.NewRequest{Student: student.Username})
	require.NoError(t, err)

	_, err = svc.Request(ctx, parent, family.NewRequest{Student: student.Username})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, family.ErrAlreadyRequested, verr.Err)
}

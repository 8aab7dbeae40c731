package echoapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/user"
)

func (e *env) notify(t *testing.T, usr user.User, title string) notification.Notification {
	t.Helper()
	notifs, err := e.notifSvc.Notify(context.Background(), []string{usr.ID}, notification.NewNotification{
		Kind:  notification.KindContestCreated,
		Title: title,
	})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	return notifs[0]
}

func Test_notificationApi(t *testing.T) {
	e := setup(t)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	other := e.createUser(t, "Other", "other", user.RoleStudent)
	studentToken := getToken(t, e.conf, student)
	otherToken := getToken(t, e.conf, other)

	n1 := e.notify(t, student, "first")
	n2 := e.notify(t, student, "second")
	e.notify(t, student, "third")

	page := func(token, query string) notification.Page {
		rec := e.do(http.MethodGet, "/api/notifications"+query, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p notification.Page
		decode(t, rec, &p)
		return p
	}

	e.run(t, []httpTest{
		{name: "auth required", path: "/api/notifications", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "unread count", path: "/api/notifications/unread-count", token: studentToken, wantData: []byte(`{"unread":3}`)},
		{name: "nothing for others", path: "/api/notifications", token: otherToken, wantData: []byte(`{"count":0,"unread":0,"results":[]}`)},
		{name: "others cannot read", method: http.MethodPost, path: "/api/notifications/" + n1.ID + "/read", token: otherToken, wantCode: http.StatusNotFound},
		{name: "others cannot delete", method: http.MethodDelete, path: "/api/notifications/" + n1.ID, token: otherToken, wantCode: http.StatusNotFound},
	})

	t.Run("list", func(t *testing.T) {
		p := page(studentToken, "?page_size=2")
		assert.Equal(t, 3, p.Count)
		assert.Equal(t, 3, p.Unread)
		assert.Len(t, p.Results, 2)
	})

	t.Run("read", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/api/notifications/"+n1.ID+"/read", studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var n notification.Notification
		decode(t, rec, &n)
		assert.True(t, n.IsRead())

		p := page(studentToken, "?unread=true")
		assert.Equal(t, 2, p.Count)
		assert.Equal(t, 2, p.Unread)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/notifications/"+n2.ID, studentToken).Code)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/notifications/"+n2.ID, studentToken).Code)
		assert.Equal(t, 2, page(studentToken, "").Count)
	})

	t.Run("read all", func(t *testing.T) {
		checkCodeAndData(t, httpTest{wantData: []byte(`{"updated":1}`)}, e.do(http.MethodPost, "/api/notifications/read-all", studentToken))
		checkCodeAndData(t, httpTest{wantData: []byte(`{"unread":0}`)}, e.do(http.MethodGet, "/api/notifications/unread-count", studentToken))
	})
}

func Test_notificationApi_stream(t *testing.T) {
	e := setup(t)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	other := e.createUser(t, "Other", "other", user.RoleStudent)

	srv := httptest.NewServer(e.app)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream?token="+getToken(t, e.conf, student), nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	// the stream is subscribed once the greeting is flushed
	assert.Equal(t, 1, e.hub.ClientCount(student.ID))
	e.notify(t, other, "not for you")
	n := e.notify(t, student, "hello")

	event := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ": "); ok {
			event[k] = v
		}
	}
	assert.Equal(t, n.ID, event["id"])
	assert.Equal(t, "notification", event["event"])
	var got notification.Notification
	require.NoError(t, json.Unmarshal([]byte(event["data"]), &got))
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, student.ID, got.UserID)
}

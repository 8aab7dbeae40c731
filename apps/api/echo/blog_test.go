package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core/blog"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/user"
)

func Test_blogApi_workflow(t *testing.T) {
	e := setup(t)
	author := e.createUser(t, "Author", "author", user.RoleStudent)
	reader := e.createUser(t, "Reader", "reader", user.RoleStudent)
	guest := e.createUser(t, "Guest", "guest", user.RoleGuest)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	admin := e.createUser(t, "Admin", "admin", user.RoleAdmin)
	authorToken := getToken(t, e.conf, author)
	readerToken := getToken(t, e.conf, reader)
	teacherToken := getToken(t, e.conf, teacher)
	adminToken := getToken(t, e.conf, admin)

	getPost := func(t *testing.T, method, path, token string, body ...[]byte) blog.Post {
		t.Helper()
		rec := e.do(method, path, token, body...)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p blog.Post
		decode(t, rec, &p)
		return p
	}

	e.run(t, []httpTest{
		{name: "public list", path: "/api/posts", wantData: marchallList(t)},
		{name: "create: auth required", method: http.MethodPost, path: "/api/posts", body: []byte(`{}`), wantCode: http.StatusUnauthorized},
		{
			name: "create: guests cannot post", method: http.MethodPost, path: "/api/posts", token: getToken(t, e.conf, guest),
			body: []byte(`{"title":"Hi","content":"hello"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: blog.ErrGuestsCannotPost.Error()}),
		},
		{name: "create: content required", method: http.MethodPost, path: "/api/posts", token: authorToken, body: []byte(`{"title":"Hi"}`), wantCode: http.StatusBadRequest},
		{name: "moderation: staff only", path: "/api/posts/moderation", token: authorToken, wantCode: http.StatusForbidden},
	})

	rec := e.do(http.MethodPost, "/api/posts", authorToken, []byte(`{"title":"My first AC","content":"**finally**","tags":["Go"," go ","DP"]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p blog.Post
	decode(t, rec, &p)
	assert.Equal(t, blog.StatusDraft, p.Status)
	assert.Equal(t, []string{"go", "dp"}, p.Tags)
	assert.Contains(t, p.ContentHTML, "<strong>finally</strong>")
	path := "/api/posts/" + p.ID

	e.run(t, []httpTest{
		{name: "drafts are hidden from the public", path: path, wantCode: http.StatusNotFound},
		{name: "drafts are hidden from other users", path: path, token: readerToken, wantCode: http.StatusNotFound},
		{name: "author sees the draft", path: path, token: authorToken},
		{name: "staff sees the draft", path: path, token: teacherToken},
		{name: "others cannot edit", method: http.MethodPut, path: path, token: readerToken, body: []byte(`{"title":"Mine"}`), wantCode: http.StatusNotFound},
		{name: "others cannot submit", method: http.MethodPost, path: path + "/submit", token: readerToken, wantCode: http.StatusNotFound},
		{
			name: "drafts cannot be approved", method: http.MethodPost, path: path + "/approve", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: blog.ErrInvalidTransition.Error()}),
		},
	})

	t.Run("submit and approve", func(t *testing.T) {
		assert.Equal(t, blog.StatusPending, getPost(t, http.MethodPost, path+"/submit", authorToken).Status)

		var queue []blog.Post
		decode(t, e.do(http.MethodGet, "/api/posts/moderation", teacherToken), &queue)
		require.Len(t, queue, 1)
		assert.Equal(t, p.ID, queue[0].ID)

		assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, path+"/approve", authorToken).Code)
		approved := getPost(t, http.MethodPost, path+"/approve", teacherToken)
		assert.Equal(t, blog.StatusPublished, approved.Status)
		assert.NotNil(t, approved.PublishedAt)
		assert.Equal(t, []string{notification.KindPostApproved}, kinds(e.notifications(t, author)))

		var public []blog.Post
		decode(t, e.do(http.MethodGet, "/api/posts", ""), &public)
		require.Len(t, public, 1)
		assert.Equal(t, "Author", public[0].AuthorName)
		decode(t, e.do(http.MethodGet, "/api/posts?tag=DP", ""), &public)
		assert.Len(t, public, 1)
		decode(t, e.do(http.MethodGet, "/api/posts?tag=d", ""), &public)
		assert.Empty(t, public)
		decode(t, e.do(http.MethodGet, "/api/posts?search=first", readerToken), &public)
		assert.Len(t, public, 1)
		assert.Equal(t, http.StatusOK, e.do(http.MethodGet, path, "").Code)
	})

	t.Run("staff cannot edit published posts of others", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, path, teacherToken, []byte(`{"title":"Edited"}`)).Code)
	})

	t.Run("author edits go back to draft", func(t *testing.T) {
		edited := getPost(t, http.MethodPut, path, authorToken, []byte(`{"title":"My first AC!"}`))
		assert.Equal(t, blog.StatusDraft, edited.Status)
		assert.Nil(t, edited.PublishedAt)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, "").Code)
	})

	t.Run("reject", func(t *testing.T) {
		getPost(t, http.MethodPost, path+"/submit", authorToken)
		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, path+"/reject", teacherToken, []byte(`{}`)).Code)

		rejected := getPost(t, http.MethodPost, path+"/reject", teacherToken, []byte(`{"reason":"Too short"}`))
		assert.Equal(t, blog.StatusRejected, rejected.Status)
		assert.Equal(t, "Too short", rejected.RejectReason)
		assert.Contains(t, kinds(e.notifications(t, author)), notification.KindPostRejected)

		edited := getPost(t, http.MethodPut, path, authorToken, []byte(`{"content":"**finally**, with details"}`))
		assert.Equal(t, blog.StatusRejected, edited.Status)

		resubmitted := getPost(t, http.MethodPost, path+"/submit", authorToken)
		assert.Equal(t, blog.StatusPending, resubmitted.Status)
		assert.Empty(t, resubmitted.RejectReason)
	})

	t.Run("unpublish", func(t *testing.T) {
		getPost(t, http.MethodPost, path+"/approve", adminToken)
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, path+"/unpublish", teacherToken).Code)
		unpublished := getPost(t, http.MethodPost, path+"/unpublish", adminToken)
		assert.Equal(t, blog.StatusDraft, unpublished.Status)
		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, path+"/unpublish", adminToken).Code)
	})

	t.Run("mine lists every status", func(t *testing.T) {
		var mine []blog.Post
		decode(t, e.do(http.MethodGet, "/api/posts?mine=true", authorToken), &mine)
		require.Len(t, mine, 1)
		decode(t, e.do(http.MethodGet, "/api/posts?mine=true", ""), &mine)
		assert.Empty(t, mine)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, path, readerToken).Code)
		assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, path, authorToken).Code)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, authorToken).Code)
	})
}

package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/user"
	"github.com/oiclass/oiclass/core/video"
)

func (e *env) createVideo(t *testing.T, owner user.User, title, status string) video.Video {
	t.Helper()
	now := core.Now()
	v, err := e.videoRepo.CreateVideo(context.Background(), video.Video{
		ID:        uuid.New().String(),
		Title:     title,
		OwnerID:   owner.ID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return v
}

func (e *env) createPoint(t *testing.T, author user.User, title, group, category string) knowledge.KnowledgePoint {
	t.Helper()
	kp, err := e.knowledgeSvc.CreatePoint(context.Background(), author, knowledge.NewPoint{Title: title, Group: group, Category: category})
	require.NoError(t, err)
	return kp
}

func Test_knowledgeApi_points(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	teacherToken := getToken(t, e.conf, teacher)
	studentToken := getToken(t, e.conf, student)

	e.createPoint(t, teacher, "Binary search", "Basics", "Search")
	e.createPoint(t, teacher, "Dijkstra", "Graphs", "Shortest paths")
	e.createPoint(t, teacher, "BFS", "Graphs", "Traversal")

	e.run(t, []httpTest{
		{name: "auth required", path: "/api/knowledge-points", wantCode: http.StatusUnauthorized},
		{
			name: "students cannot create", method: http.MethodPost, path: "/api/knowledge-points", token: studentToken,
			body: []byte(`{"title":"DP"}`), wantCode: http.StatusForbidden,
		},
		{name: "title required", method: http.MethodPost, path: "/api/knowledge-points", token: teacherToken, body: []byte(`{"group":"DP"}`), wantCode: http.StatusBadRequest},
		{name: "unknown", path: "/api/knowledge-points/lol", token: studentToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "knowledge point not found"})},
		{
			name: "groups", path: "/api/knowledge-points/groups", token: studentToken,
			wantData: marchallObj(t, []knowledge.Group{
				{Name: "Basics", Categories: []string{"Search"}},
				{Name: "Graphs", Categories: []string{"Shortest paths", "Traversal"}},
			}),
		},
	})

	t.Run("create and get", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/api/knowledge-points", teacherToken, []byte(`{"title":"  Knapsack ","group":"DP","content":"# 0/1 knapsack"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var kp knowledge.KnowledgePoint
		decode(t, rec, &kp)
		assert.Equal(t, "Knapsack", kp.Title)
		assert.Equal(t, teacher.ID, kp.AuthorID)
		assert.Contains(t, kp.ContentHTML, "<h1")

		rec = e.do(http.MethodGet, "/api/knowledge-points/"+kp.ID, studentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var got knowledge.KnowledgePoint
		decode(t, rec, &got)
		assert.Equal(t, kp.ID, got.ID)
		assert.Empty(t, got.Problems)
		assert.Empty(t, got.Videos)
	})

	t.Run("search and filter", func(t *testing.T) {
		var kps []knowledge.KnowledgePoint
		rec := e.do(http.MethodGet, "/api/knowledge-points?search=GRAPH&ordering=title", studentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &kps)
		require.Len(t, kps, 2)
		assert.Equal(t, "BFS", kps[0].Title)
		assert.Equal(t, "Dijkstra", kps[1].Title)

		rec = e.do(http.MethodGet, "/api/knowledge-points?group=Basics", studentToken)
		decode(t, rec, &kps)
		require.Len(t, kps, 1)
		assert.Equal(t, "Binary search", kps[0].Title)

		rec = e.do(http.MethodGet, "/api/knowledge-points?search=nothing", studentToken)
		checkCodeAndData(t, httpTest{wantData: marchallList(t)}, rec)
	})
}

func Test_knowledgeApi_problems(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	teacherToken := getToken(t, e.conf, teacher)
	studentToken := getToken(t, e.conf, student)
	kp := e.createPoint(t, teacher, "Basics", "", "")
	other := e.createPoint(t, teacher, "Other", "", "")

	rec := e.do(http.MethodPost, "/api/knowledge-points/"+kp.ID+"/problems", teacherToken,
		[]byte(`{"title":"A+B Problem","source":"LUOGU","source_id":"p1001","difficulty":"entry"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p knowledge.Problem
	decode(t, rec, &p)
	assert.Equal(t, knowledge.SourceLuogu, p.Source)
	assert.Equal(t, "P1001", p.SourceID)

	e.run(t, []httpTest{
		{
			name: "duplicate source id", method: http.MethodPost, path: "/api/knowledge-points/" + kp.ID + "/problems", token: teacherToken,
			body:     []byte(`{"title":"Again","source":"luogu","source_id":"1001"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"source_id": knowledge.ErrProblemExists.Error()}),
		},
		{
			name: "custom problems need no source id", method: http.MethodPost, path: "/api/knowledge-points/" + kp.ID + "/problems", token: teacherToken,
			body: []byte(`{"title":"Homework 1"}`), wantCode: http.StatusCreated,
		},
		{
			name: "unknown point", method: http.MethodPost, path: "/api/knowledge-points/lol/problems", token: teacherToken,
			body: []byte(`{"title":"X","source":"custom"}`), wantCode: http.StatusNotFound,
		},
		{name: "students cannot delete", method: http.MethodDelete, path: "/api/problems/" + p.ID, token: studentToken, wantCode: http.StatusForbidden},
		{name: "lookup unknown", path: "/api/problems/lookup?source=luogu&source_id=P9999", token: studentToken, wantCode: http.StatusNotFound},
		{
			name: "move to an unknown point", method: http.MethodPut, path: "/api/problems/" + p.ID, token: teacherToken,
			body: []byte(`{"knowledge_point_id":"lol"}`), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("lookup", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/api/problems/lookup?source=luogu&source_id=1001", studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got knowledge.Problem
		decode(t, rec, &got)
		assert.Equal(t, p.ID, got.ID)
	})

	t.Run("move", func(t *testing.T) {
		rec := e.do(http.MethodPut, "/api/problems/"+p.ID, teacherToken, []byte(`{"knowledge_point_id":"`+other.ID+`","position":3}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var moved knowledge.Problem
		decode(t, rec, &moved)
		assert.Equal(t, other.ID, moved.KnowledgePointID)
		assert.Equal(t, 3, moved.Position)

		rec = e.do(http.MethodGet, "/api/knowledge-points/"+other.ID, studentToken)
		var got knowledge.KnowledgePoint
		decode(t, rec, &got)
		require.Len(t, got.Problems, 1)
		assert.Equal(t, p.ID, got.Problems[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/problems/"+p.ID, teacherToken).Code)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/problems/"+p.ID, studentToken).Code)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/problems/"+p.ID, teacherToken).Code)
	})
}

func Test_knowledgeApi_videos(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	teacherToken := getToken(t, e.conf, teacher)
	studentToken := getToken(t, e.conf, student)
	kp := e.createPoint(t, teacher, "Basics", "", "")

	ready := e.createVideo(t, teacher, "Ready", video.StatusReady)
	processing := e.createVideo(t, teacher, "Processing", video.StatusProcessing)
	failed := e.createVideo(t, teacher, "Failed", video.StatusFailed)
	attach := func(id string) []byte { return []byte(`{"video_id":"` + id + `"}`) }
	path := "/api/knowledge-points/" + kp.ID + "/videos"

	e.run(t, []httpTest{
		{name: "students cannot attach", method: http.MethodPost, path: path, token: studentToken, body: attach(ready.ID), wantCode: http.StatusForbidden},
		{name: "attach ready", method: http.MethodPost, path: path, token: teacherToken, body: attach(ready.ID), wantCode: http.StatusNoContent},
		{name: "attach processing", method: http.MethodPost, path: path, token: teacherToken, body: attach(processing.ID), wantCode: http.StatusNoContent},
		{
			name: "attach failed", method: http.MethodPost, path: path, token: teacherToken, body: attach(failed.ID),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"video_id": knowledge.ErrVideoFailed.Error()}),
		},
		{name: "attach unknown", method: http.MethodPost, path: path, token: teacherToken, body: attach("lol"), wantCode: http.StatusBadRequest},
	})

	videoIDs := func(token string) []string {
		var got knowledge.KnowledgePoint
		decode(t, e.do(http.MethodGet, "/api/knowledge-points/"+kp.ID, token), &got)
		ids := make([]string, 0, len(got.Videos))
		for _, v := range got.Videos {
			ids = append(ids, v.ID)
		}
		return ids
	}
	assert.ElementsMatch(t, []string{ready.ID, processing.ID}, videoIDs(teacherToken))
	assert.Equal(t, []string{ready.ID}, videoIDs(studentToken))

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, path+"/"+ready.ID, teacherToken).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, path+"/"+ready.ID, teacherToken).Code)
	assert.Empty(t, videoIDs(studentToken))
}

package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core/family"
	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/progress"
	"github.com/oiclass/oiclass/core/user"
)

func (e *env) createProblem(t *testing.T, kpID, title, source, sourceID string) knowledge.Problem {
	t.Helper()
	p, err := e.knowledgeSvc.AddProblem(context.Background(), kpID, knowledge.NewProblem{Title: title, Source: source, SourceID: sourceID})
	require.NoError(t, err)
	return p
}

// bind makes parent follow student.
func (e *env) bind(t *testing.T, parent, student user.User) family.BindingRequest {
	t.Helper()
	ctx := context.Background()
	req, err := e.familySvc.Request(ctx, parent, family.NewRequest{Student: student.Username})
	require.NoError(t, err)
	req, err = e.familySvc.Accept(ctx, student, req.ID)
	require.NoError(t, err)
	return req
}

func Test_progressApi(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	parent := e.createUser(t, "Parent", "parent", user.RoleParent)
	stranger := e.createUser(t, "Stranger", "stranger", user.RoleParent)
	teacherToken := getToken(t, e.conf, teacher)
	studentToken := getToken(t, e.conf, student)
	parentToken := getToken(t, e.conf, parent)
	strangerToken := getToken(t, e.conf, stranger)

	kp := e.createPoint(t, teacher, "Basics", "Intro", "")
	p1 := e.createProblem(t, kp.ID, "A+B", knowledge.SourceLuogu, "P1001")
	p2 := e.createProblem(t, kp.ID, "A*B", knowledge.SourceLuogu, "P1002")
	e.createProblem(t, kp.ID, "Homework", knowledge.SourceCustom, "")
	e.bind(t, parent, student)

	solved := []byte(`{"status":"solved"}`)
	e.run(t, []httpTest{
		{name: "auth required", path: "/api/progress", wantCode: http.StatusUnauthorized},
		{
			name: "students only", method: http.MethodPut, path: "/api/progress/problems/" + p1.ID, token: teacherToken, body: solved,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: progress.ErrStudentsOnly.Error()}),
		},
		{name: "bad status", method: http.MethodPut, path: "/api/progress/problems/" + p1.ID, token: studentToken, body: []byte(`{"status":"done"}`), wantCode: http.StatusBadRequest},
		{name: "unknown problem", method: http.MethodPut, path: "/api/progress/problems/lol", token: studentToken, body: solved, wantCode: http.StatusNotFound},
		{name: "solve", method: http.MethodPut, path: "/api/progress/problems/" + p1.ID, token: studentToken, body: solved},
		{name: "attempt", method: http.MethodPut, path: "/api/progress/problems/" + p2.ID, token: studentToken, body: []byte(`{"status":" Attempted "}`)},
		{name: "reset unknown", method: http.MethodDelete, path: "/api/progress/problems/lol", token: studentToken, wantCode: http.StatusNotFound},
		{name: "stranger cannot look", path: "/api/progress?student=" + student.ID, token: strangerToken, wantCode: http.StatusNotFound},
		{name: "stranger cannot summarize", path: "/api/progress/summary?student=" + student.ID, token: strangerToken, wantCode: http.StatusNotFound},
	})

	list := func(token, query string) []progress.ProblemProgress {
		rec := e.do(http.MethodGet, "/api/progress"+query, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var pps []progress.ProblemProgress
		decode(t, rec, &pps)
		return pps
	}

	t.Run("list", func(t *testing.T) {
		pps := list(studentToken, "")
		require.Len(t, pps, 2)
		byProblem := map[string]progress.ProblemProgress{}
		for _, pp := range pps {
			byProblem[pp.ProblemID] = pp
		}
		assert.Equal(t, progress.StatusSolved, byProblem[p1.ID].Status)
		assert.Equal(t, "A+B", byProblem[p1.ID].ProblemTitle)
		assert.Equal(t, progress.StatusAttempted, byProblem[p2.ID].Status)

		assert.Len(t, list(studentToken, "?status=solved"), 1)
		assert.Len(t, list(parentToken, "?student="+student.ID), 2)
		assert.Len(t, list(teacherToken, "?student="+student.ID+"&knowledge_point="+kp.ID), 2)
		assert.Empty(t, list(parentToken, ""))
	})

	t.Run("summary", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/api/progress/summary?student="+student.ID, parentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sums []progress.Summary
		decode(t, rec, &sums)
		require.Len(t, sums, 1)
		assert.Equal(t, progress.Summary{KnowledgePointID: kp.ID, Title: "Basics", Group: "Intro", Total: 3, Attempted: 1, Solved: 1}, sums[0])
	})

	t.Run("reset", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/progress/problems/"+p2.ID, studentToken).Code)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/progress/problems/"+p2.ID, studentToken).Code)
		assert.Len(t, list(studentToken, ""), 1)
	})

	t.Run("deleting a problem drops its progress", func(t *testing.T) {
		require.NoError(t, e.knowledgeSvc.DeleteProblem(context.Background(), p1.ID))
		assert.Empty(t, list(studentToken, ""))
	})
}

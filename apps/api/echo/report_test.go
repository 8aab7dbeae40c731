package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/progress"
	"github.com/oiclass/oiclass/core/report"
	"github.com/oiclass/oiclass/core/user"
)

func Test_reportApi(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	otherTeacher := e.createUser(t, "Other Teacher", "teacher2", user.RoleTeacher)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	classmate := e.createUser(t, "Classmate", "classmate", user.RoleStudent)
	parent := e.createUser(t, "Parent", "parent", user.RoleParent)
	stranger := e.createUser(t, "Stranger", "stranger", user.RoleParent)
	teacherToken := getToken(t, e.conf, teacher)
	studentToken := getToken(t, e.conf, student)
	classmateToken := getToken(t, e.conf, classmate)
	parentToken := getToken(t, e.conf, parent)
	strangerToken := getToken(t, e.conf, stranger)

	e.bind(t, parent, student)
	kp := e.createPoint(t, teacher, "Basics", "", "")
	p1 := e.createProblem(t, kp.ID, "A+B", knowledge.SourceLuogu, "P1001")
	p2 := e.createProblem(t, kp.ID, "A*B", knowledge.SourceLuogu, "P1002")
	ctx := context.Background()
	_, err := e.progressSvc.SetStatus(ctx, student, p1.ID, progress.SetStatus{Status: progress.StatusSolved})
	require.NoError(t, err)
	_, err = e.progressSvc.SetStatus(ctx, student, p2.ID, progress.SetStatus{Status: progress.StatusAttempted})
	require.NoError(t, err)

	body := func(studentID string) []byte {
		return []byte(`{"student_id":"` + studentID + `","title":"October","period":"2026-10","content":"Good **progress**"}`)
	}
	e.run(t, []httpTest{
		{name: "auth required", path: "/api/reports", wantCode: http.StatusUnauthorized},
		{name: "staff only", method: http.MethodPost, path: "/api/reports", token: parentToken, body: body(student.ID), wantCode: http.StatusForbidden},
		{
			name: "unknown student", method: http.MethodPost, path: "/api/reports", token: teacherToken, body: body("lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_id": user.ErrNotFound.Error()}),
		},
		{
			name: "not a student", method: http.MethodPost, path: "/api/reports", token: teacherToken, body: body(parent.ID),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_id": report.ErrNotAStudent.Error()}),
		},
	})

	rec := e.do(http.MethodPost, "/api/reports", teacherToken, body(student.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r report.Report
	decode(t, rec, &r)
	assert.Equal(t, "Student", r.StudentName)
	assert.Equal(t, 1, r.SolvedCount)
	assert.Equal(t, 1, r.AttemptedCount)
	assert.Contains(t, r.ContentHTML, "<strong>progress</strong>")
	path := "/api/reports/" + r.ID

	t.Run("student and parents are told", func(t *testing.T) {
		assert.Contains(t, kinds(e.notifications(t, student)), notification.KindReportPublished)
		assert.Contains(t, kinds(e.notifications(t, parent)), notification.KindReportPublished)
		assert.Empty(t, e.notifications(t, stranger))

		sent := e.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, "parent@test.cd", sent[0].To[0].Address)
		assert.Equal(t, "report_published", sent[0].TemplateName)
		assert.Contains(t, sent[0].TextContent, "/reports/"+r.ID)
		assert.Contains(t, sent[0].TextContent, "Solved problems: 1, attempted: 1.")
	})

	e.run(t, []httpTest{
		{name: "student reads own report", path: path, token: studentToken},
		{name: "bound parent reads it", path: path, token: parentToken},
		{name: "other staff read it", path: path, token: getToken(t, e.conf, otherTeacher)},
		{name: "classmate cannot", path: path, token: classmateToken, wantCode: http.StatusNotFound},
		{name: "stranger cannot", path: path, token: strangerToken, wantCode: http.StatusNotFound},
		{name: "stranger lists nothing", path: "/api/reports", token: strangerToken, wantData: marchallList(t)},
		{name: "classmate lists nothing", path: "/api/reports", token: classmateToken, wantData: marchallList(t)},
		{
			name: "only the author edits", method: http.MethodPut, path: path, token: getToken(t, e.conf, otherTeacher),
			body: []byte(`{"title":"Mine"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: report.ErrAuthorsOnly.Error()}),
		},
	})

	t.Run("list", func(t *testing.T) {
		for _, token := range []string{studentToken, parentToken, teacherToken} {
			var got []report.Report
			decode(t, e.do(http.MethodGet, "/api/reports", token), &got)
			require.Len(t, got, 1)
			assert.Equal(t, r.ID, got[0].ID)
		}
		var got []report.Report
		decode(t, e.do(http.MethodGet, "/api/reports?student="+classmate.ID, teacherToken), &got)
		assert.Empty(t, got)
	})

	t.Run("refresh stats", func(t *testing.T) {
		_, err := e.progressSvc.SetStatus(ctx, student, p2.ID, progress.SetStatus{Status: progress.StatusSolved})
		require.NoError(t, err)

		rec := e.do(http.MethodPut, path, teacherToken, []byte(`{"period":"Oct 2026"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated report.Report
		decode(t, rec, &updated)
		assert.Equal(t, "Oct 2026", updated.Period)
		assert.Equal(t, 1, updated.SolvedCount)

		decode(t, e.do(http.MethodPut, path, teacherToken, []byte(`{"refresh_stats":true}`)), &updated)
		assert.Equal(t, 2, updated.SolvedCount)
		assert.Equal(t, 0, updated.AttemptedCount)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, path, getToken(t, e.conf, otherTeacher)).Code)
		assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, path, teacherToken).Code)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, studentToken).Code)
	})
}

package echoapi_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core/user"
	"github.com/oiclass/oiclass/core/video"
)

func Test_videoApi_upload(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	otherTeacher := e.createUser(t, "Other Teacher", "teacher2", user.RoleTeacher)
	student := e.createUser(t, "Student", "student", user.RoleStudent)
	teacherToken := getToken(t, e.conf, teacher)
	otherToken := getToken(t, e.conf, otherTeacher)
	studentToken := getToken(t, e.conf, student)

	const size = 2500
	content := bytes.Repeat([]byte("0123456789"), size/10)
	initBody := func(filename string, size, chunkSize int) []byte {
		return []byte(fmt.Sprintf(`{"title":"Lesson 1","filename":%q,"size":%d,"chunk_size":%d}`, filename, size, chunkSize))
	}

	e.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/videos/uploads", wantCode: http.StatusUnauthorized},
		{name: "staff only", method: http.MethodPost, path: "/api/videos/uploads", token: studentToken, body: initBody("a.mp4", size, 1024), wantCode: http.StatusForbidden},
		{name: "title required", method: http.MethodPost, path: "/api/videos/uploads", token: teacherToken, body: []byte(`{"filename":"a.mp4","size":1,"chunk_size":1}`), wantCode: http.StatusBadRequest},
		{
			name: "unsupported format", method: http.MethodPost, path: "/api/videos/uploads", token: teacherToken, body: initBody("notes.txt", size, 1024),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"filename": "unsupported video format"}),
		},
		{
			name: "too large", method: http.MethodPost, path: "/api/videos/uploads", token: teacherToken, body: initBody("a.MP4", 2<<20, 1024),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"size": "file is larger than 1.0 MiB"}),
		},
		{
			name: "chunks too large", method: http.MethodPost, path: "/api/videos/uploads", token: teacherToken, body: initBody("a.mp4", size, 4096),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"chunk_size": "chunk size is larger than 1.0 KiB"}),
		},
	})

	rec := e.do(http.MethodPost, "/api/videos/uploads", teacherToken, initBody("Lesson 1.MP4", size, 1024))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u video.Upload
	decode(t, rec, &u)
	assert.Equal(t, 3, u.TotalChunks)
	assert.Equal(t, video.UploadUploading, u.Status)
	assert.Equal(t, []int{0, 1, 2}, u.Missing)
	path := "/api/videos/uploads/" + u.ID

	chunk := func(index int) []byte {
		start := index * 1024
		end := start + 1024
		if end > size {
			end = size
		}
		return content[start:end]
	}

	e.run(t, []httpTest{
		{name: "status is private", path: path, token: otherToken, wantCode: http.StatusNotFound},
		{name: "others cannot upload", method: http.MethodPut, path: path + "/chunks/0", token: otherToken, body: chunk(0), wantCode: http.StatusNotFound},
		{name: "bad index", method: http.MethodPut, path: path + "/chunks/first", token: teacherToken, body: chunk(0), wantCode: http.StatusBadRequest},
		{
			name: "index out of range", method: http.MethodPut, path: path + "/chunks/3", token: teacherToken, body: chunk(0),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"index": video.ErrChunkIndex.Error()}),
		},
		{
			name: "short chunk", method: http.MethodPut, path: path + "/chunks/0", token: teacherToken, body: chunk(2),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"chunk": "expected 1,024 bytes, got 452"}),
		},
		{name: "chunk 0", method: http.MethodPut, path: path + "/chunks/0", token: teacherToken, body: chunk(0)},
		{name: "chunk 2", method: http.MethodPut, path: path + "/chunks/2", token: teacherToken, body: chunk(2)},
		{name: "chunk 2 again", method: http.MethodPut, path: path + "/chunks/2", token: teacherToken, body: chunk(2)},
		{
			name: "incomplete", method: http.MethodPost, path: path + "/complete", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"error":"missing chunks: 1","missing":[1]}`),
		},
	})

	t.Run("resume", func(t *testing.T) {
		rec := e.do(http.MethodGet, path, teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var got video.Upload
		decode(t, rec, &got)
		assert.Equal(t, []int{0, 2}, got.Received)
		assert.Equal(t, []int{1}, got.Missing)

		rec = e.do(http.MethodPut, path+"/chunks/1", teacherToken, chunk(1))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &got)
		assert.Empty(t, got.Missing)
	})

	var v video.Video
	t.Run("complete", func(t *testing.T) {
		rec := e.do(http.MethodPost, path+"/complete", teacherToken)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		decode(t, rec, &v)
		assert.Equal(t, video.StatusProcessing, v.Status)
		assert.Equal(t, "Lesson 1", v.Title)
		assert.Equal(t, int64(size), v.SourceSize)

		queued := e.queue.Enqueued()
		require.Len(t, queued, 1)
		assert.Equal(t, v.ID, queued[0].ID)
		data, err := os.ReadFile(queued[0].SourcePath)
		require.NoError(t, err)
		assert.Equal(t, content, data)

		// completing again returns the same video without queueing it twice
		rec = e.do(http.MethodPost, path+"/complete", teacherToken)
		require.Equal(t, http.StatusAccepted, rec.Code)
		var again video.Video
		decode(t, rec, &again)
		assert.Equal(t, v.ID, again.ID)
		assert.Len(t, e.queue.Enqueued(), 1)

		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, path+"/chunks/0", teacherToken, chunk(0)).Code)
	})

	t.Run("processing videos are hidden from students", func(t *testing.T) {
		checkCodeAndData(t, httpTest{wantData: marchallList(t)}, e.do(http.MethodGet, "/api/videos", studentToken))
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/videos/"+v.ID, studentToken).Code)

		var videos []video.Video
		decode(t, e.do(http.MethodGet, "/api/videos?status=processing", otherToken), &videos)
		require.Len(t, videos, 1)
		assert.Equal(t, v.ID, videos[0].ID)
	})

	t.Run("manage", func(t *testing.T) {
		vpath := "/api/videos/" + v.ID
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, vpath, otherToken, []byte(`{"title":"Mine"}`)).Code)
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, vpath, studentToken, []byte(`{"title":"Mine"}`)).Code)
		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, vpath+"/retranscode", teacherToken).Code)

		rec := e.do(http.MethodPut, vpath, teacherToken, []byte(`{"title":" Lesson 1: basics ","description":"Input and output"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated video.Video
		decode(t, rec, &updated)
		assert.Equal(t, "Lesson 1: basics", updated.Title)

		stored, err := e.videoRepo.GetVideo(context.Background(), v.ID)
		require.NoError(t, err)
		stored.Status = video.StatusReady
		_, err = e.videoRepo.UpdateVideo(context.Background(), stored)
		require.NoError(t, err)

		var videos []video.Video
		decode(t, e.do(http.MethodGet, "/api/videos", studentToken), &videos)
		require.Len(t, videos, 1)
		assert.Equal(t, http.StatusOK, e.do(http.MethodGet, vpath, studentToken).Code)

		rec = e.do(http.MethodPost, vpath+"/retranscode", teacherToken)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Len(t, e.queue.Enqueued(), 2)

		assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, vpath, otherToken).Code)
		assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, vpath, teacherToken).Code)
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, vpath, teacherToken).Code)
		_, err = os.Stat(stored.SourcePath)
		assert.True(t, os.IsNotExist(err))
	})
}

package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpload_chunks(t *testing.T) {
	u := Upload{Size: 2500, ChunkSize: 1024, TotalChunks: 3}
	assert.Equal(t, int64(1024), u.ChunkLength(0))
	assert.Equal(t, int64(1024), u.ChunkLength(1))
	assert.Equal(t, int64(452), u.ChunkLength(2))

	u.SetReceived([]int{2, 0, 2})
	assert.Equal(t, []int{0, 2}, u.Received)
	assert.Equal(t, []int{1}, u.Missing)

	u.SetReceived(nil)
	assert.Empty(t, u.Received)
	assert.Equal(t, []int{0, 1, 2}, u.Missing)

	exact := Upload{Size: 2048, ChunkSize: 1024, TotalChunks: 2}
	assert.Equal(t, int64(1024), exact.ChunkLength(1))
}

func TestMissingChunksError(t *testing.T) {
	assert.EqualError(t, MissingChunksError{Missing: []int{1, 4}}, "missing chunks: 1,4")
}

func Test_truncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "编程", truncate("编程竞赛", 2))
}

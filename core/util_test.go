package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Hello World", CleanString("  Hello World \n"))
	assert.Equal(t, "hello world", CleanString("\tHello World ", true))
	assert.Equal(t, []string{"go", "dp"}, CleanStrings([]string{" Go", "", "  ", "DP "}, true))
	assert.Nil(t, CleanStrings(nil))
}

func TestPagination(t *testing.T) {
	tests := []struct {
		in            Pagination
		want          Pagination
		limit, offset uint64
	}{
		{Pagination{}, Pagination{Page: 1, PageSize: DefaultPageSize}, uint64(DefaultPageSize), 0},
		{Pagination{Page: 3, PageSize: 10}, Pagination{Page: 3, PageSize: 10}, 10, 20},
		{Pagination{Page: -1, PageSize: MaxPageSize + 1}, Pagination{Page: 1, PageSize: MaxPageSize}, uint64(MaxPageSize), 0},
	}
	for _, tt := range tests {
		p := tt.in
		p.Clean()
		assert.Equal(t, tt.want, p)
		assert.Equal(t, tt.limit, p.Limit())
		assert.Equal(t, tt.offset, p.Offset())
	}
}

func TestRenderMarkdown(t *testing.T) {
	assert.Empty(t, RenderMarkdown(""))

	got := RenderMarkdown("# Title\n\nSome **bold** text.\n\n```go\nfmt.Println(1)\n```\n")
	assert.Contains(t, got, "<h1")
	assert.Contains(t, got, "<strong>bold</strong>")
	assert.Contains(t, got, `<code class="language-go">`)

	got = RenderMarkdown("hi <script>alert(1)</script> <a href=\"javascript:alert(1)\">x</a> <img src=x onerror=alert(1)>")
	assert.False(t, strings.Contains(got, "<script"), got)
	assert.False(t, strings.Contains(got, "javascript:"), got)
	assert.False(t, strings.Contains(got, "onerror"), got)

	got = RenderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |\n")
	assert.Contains(t, got, "<table>")
}

package scraper_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core/integration"
	"github.com/oiclass/oiclass/services/scraper"
	"github.com/oiclass/oiclass/testutil"
)

// writeScript stores a shell script standing in for a python scraper.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "scraper.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newRunner(t *testing.T, timeout time.Duration) *scraper.Runner {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return scraper.NewRunner("sh", timeout, testutil.NewLogger(t))
}

func TestRunner_Run(t *testing.T) {
	runner := newRunner(t, 5*time.Second)
	ctx := context.Background()

	tests := []struct {
		name       string
		script     string
		wantErrStr string
	}{
		{name: "ok", script: `echo '{"pid":"'"$2"'","title":"A+B Problem"}'`},
		{name: "error payload", script: `echo '{"error":"problem not found"}'`, wantErrStr: "problem not found"},
		{name: "no output", script: `true`, wantErrStr: "printed nothing"},
		{name: "exit status", script: `echo boom >&2; exit 3`, wantErrStr: "boom"},
		{name: "bad json", script: `echo 'not json'`, wantErrStr: "decoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p integration.LuoguProblem
			err := runner.Run(ctx, &p, writeScript(t, tt.script), "problem", "P1001")
			if tt.wantErrStr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, integration.LuoguProblem{PID: "P1001", Title: "A+B Problem"}, p)
		})
	}
}

func TestRunner_Run_timeout(t *testing.T) {
	runner := newRunner(t, 100*time.Millisecond)
	var out map[string]interface{}
	err := runner.Run(context.Background(), &out, writeScript(t, "exec sleep 5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestClients(t *testing.T) {
	runner := newRunner(t, 5*time.Second)
	ctx := context.Background()

	luogu := scraper.NewLuogu(runner, writeScript(t, `echo '{"uid":'"$2"'}'`))
	u, err := luogu.User(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, integration.FlexString("42"), u.UID)
	assert.NotNil(t, u.Passed)

	gesp := scraper.NewGesp(runner, writeScript(t,
		`echo '[{"level":1,"language":"C++","score":88.5,"passed":true,"exam_date":"2026-03"}]'`))
	exams, err := gesp.Records(ctx, "GESP001")
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, 88.5, exams[0].Score)
	assert.True(t, exams[0].Passed)
}

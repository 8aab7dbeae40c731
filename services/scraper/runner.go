// Package scraper runs the python scrapers for Luogu and GESP and decodes
// their JSON output.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
)

const maxStderr = 1000

// Runner executes `<interpreter> <script> <args...>` and decodes stdout as JSON.
type Runner struct {
	interpreter string
	timeout     time.Duration
	logger      core.Logger
}

func NewRunner(interpreter string, timeout time.Duration, logger core.Logger) *Runner {
	return &Runner{interpreter: interpreter, timeout: timeout, logger: logger}
}

// scriptError is the payload scrapers print when they fail cleanly.
type scriptError struct {
	Error string `json:"error"`
}

func (r *Runner) Run(ctx context.Context, out interface{}, script string, args ...string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.interpreter, append([]string{script}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	r.logger.Debug("scraper finished", "script", script, "args", strings.Join(args, " "), "took", time.Since(start).String())

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.Errorf("scraper %s timed out after %s", script, r.timeout)
		}
		return errors.Wrapf(err, "scraper %s failed: %s", script, tail(stderr.String()))
	}

	payload := bytes.TrimSpace(stdout.Bytes())
	if len(payload) == 0 {
		return errors.Errorf("scraper %s printed nothing", script)
	}
	if payload[0] == '{' {
		var se scriptError
		if json.Unmarshal(payload, &se) == nil && se.Error != "" {
			return errors.Errorf("scraper %s: %s", script, se.Error)
		}
	}
	return errors.Wrapf(json.Unmarshal(payload, out), "decoding %s output", script)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[len(s)-maxStderr:]
	}
	return s
}

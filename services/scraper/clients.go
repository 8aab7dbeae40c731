package scraper

import (
	"context"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/integration"
)

type Luogu struct {
	runner *Runner
	script string
}

var _ integration.Luogu = (*Luogu)(nil)

func NewLuogu(runner *Runner, script string) *Luogu {
	return &Luogu{runner: runner, script: script}
}

func (l *Luogu) Problem(ctx context.Context, pid string) (integration.LuoguProblem, error) {
	var p integration.LuoguProblem
	err := l.runner.Run(ctx, &p, l.script, "problem", pid)
	return p, err
}

func (l *Luogu) User(ctx context.Context, uid string) (integration.LuoguUser, error) {
	var u integration.LuoguUser
	err := l.runner.Run(ctx, &u, l.script, "user", uid)
	if u.Passed == nil {
		u.Passed = []string{}
	}
	return u, err
}

type Gesp struct {
	runner *Runner
	script string
}

var _ integration.Gesp = (*Gesp)(nil)

func NewGesp(runner *Runner, script string) *Gesp {
	return &Gesp{runner: runner, script: script}
}

func (g *Gesp) Records(ctx context.Context, candidateID string) ([]integration.GespExam, error) {
	var exams []integration.GespExam
	if err := g.runner.Run(ctx, &exams, g.script, "records", candidateID); err != nil {
		return nil, err
	}
	return exams, nil
}

// New builds both clients from the scraper config.
func New(conf core.ScraperConfig, logger core.Logger) (*Luogu, *Gesp) {
	runner := NewRunner(conf.PythonBin, conf.Timeout, logger)
	return NewLuogu(runner, conf.LuoguScript), NewGesp(runner, conf.GespScript)
}

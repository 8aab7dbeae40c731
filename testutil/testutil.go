// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/user"
	logsvc "github.com/oiclass/oiclass/services/logger"
	"github.com/oiclass/oiclass/storage/database"
)

// NewConfig returns the TEST configuration backed by temporary directories.
func NewConfig(t testing.TB) *core.Config {
	t.Helper()
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.Server.DisableReqLogs = true
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")
	conf.Redis.Addr = ""
	conf.Media.Dir = t.TempDir()
	conf.Media.Storage = "local"
	conf.Media.MaxChunkSize = 1 << 10
	conf.Media.MaxUploadSize = 1 << 20
	conf.Media.TranscodeConcurrency = 1
	conf.Media.TranscodeTimeout = 10 * time.Second
	return conf
}

// NewLogger returns a logger writing to the test log.
func NewLogger(t testing.TB) core.Logger {
	return logsvc.NewZapLoggerFrom(zaptest.NewLogger(t))
}

// PrepareDB opens a migrated SQLite database under t.TempDir(), closed on cleanup.
func PrepareDB(t testing.TB) *sqlx.DB {
	t.Helper()
	conf := NewConfig(t)
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t testing.TB,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Microsecond)
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

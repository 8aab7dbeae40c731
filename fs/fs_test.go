package appfs_test

import (
	"io/fs"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core"
	appfs "github.com/oiclass/oiclass/fs"
)

func TestFS_emailTemplates(t *testing.T) {
	for _, name := range []string{"_base.txt", "_base.gohtml"} {
		_, err := fs.Stat(appfs.FS, path.Join(appfs.EmailTemplatesDir, name))
		assert.NoError(t, err, "layout %s embedded", name)
	}

	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, core.NopLogger{})
	for _, name := range []string{"password_reset", "report_published"} {
		assert.True(t, tmpls.Has(name), name)
	}
}

func TestFS_migrations(t *testing.T) {
	files, err := fs.Glob(appfs.FS, path.Join(appfs.MigrationsDir, "*.sql"))
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

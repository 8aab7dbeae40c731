package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core"
	appfs "github.com/oiclass/oiclass/fs"
	"github.com/oiclass/oiclass/testutil"
)

func Test_consoleService_send(t *testing.T) {
	conf := testutil.NewConfig(t)
	conf.SetDefaultFromEmail("noreply@oiclass.test")
	logger := testutil.NewLogger(t)
	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)

	out := new(bytes.Buffer)
	svc := newConsoleService(conf, tmpls, logger, out)

	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Parent", Address: "parent@test.cd"}},
		Subject: "Hello",
		BodyStr: "plain body",
	}
	require.NoError(t, msg.Attach(strings.NewReader("report"), "report.txt", "text/plain"))
	require.True(t, svc.sendMessage(msg))

	got := out.String()
	assert.Contains(t, got, "From: <noreply@oiclass.test>\r\n")
	assert.Contains(t, got, "Subject: ["+conf.AppName+"] Hello\r\n")
	assert.Contains(t, got, `To: "Parent" <parent@test.cd>`)
	assert.Contains(t, got, "Content-Type: multipart/mixed")
	assert.Contains(t, got, "plain body")
	assert.Contains(t, got, "attachment; filename=report.txt")

	t.Run("nothing to send", func(t *testing.T) {
		out.Reset()
		assert.False(t, svc.sendMessage(&core.EmailMessage{BodyStr: "nobody"}))
		assert.False(t, svc.sendMessage(&core.EmailMessage{To: msg.To}))
		assert.Empty(t, out.String())
	})
}

func TestConsoleServiceMock(t *testing.T) {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(t)
	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	require.True(t, tmpls.Has("report_published"))

	svc := NewConsoleServiceMock(conf, tmpls, logger)
	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "a@test.cd"}}, Subject: "One", BodyStr: "1"},
		&core.EmailMessage{Subject: "Dropped", BodyStr: "no recipient"},
	)
	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "One", sent[0].Subject)
	assert.Equal(t, "1", sent[0].TextContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

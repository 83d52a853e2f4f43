package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeWithAttachment(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "2024-01-15.csv")
	content := strings.Repeat("Date,Time,Signal\n2024-01-15,13:35,BUY\n", 20)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	raw, err := compose("bot@example.com", []string{"a@example.com", "b@example.com"}, Message{
		Subject:    "Daily Trading Log - 2024-01-15",
		Body:       "Attached is today's trading log.",
		Attachment: path,
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", msg.Header.Get("From"))
	assert.Equal(t, "a@example.com, b@example.com", msg.Header.Get("To"))

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Daily Trading Log - 2024-01-15", subject)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])

	text, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(text)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Attached is today's trading log.")

	att, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15.csv", att.FileName())
	data, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, att))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestComposeMissingAttachment(t *testing.T) {
	t.Parallel()

	raw, err := compose("bot@example.com", []string{"a@example.com"}, Message{
		Subject:    "Weekly",
		Body:       "nothing",
		Attachment: filepath.Join(t.TempDir(), "absent.csv"),
	})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Content-Disposition")
}

func TestNewSMTPSender(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPSender(SMTPConfig{Host: "smtp.gmail.com"})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.gmail.com", From: "a@b", To: []string{"c@d"}})
	require.NoError(t, err)
	assert.Equal(t, 465, s.cfg.Port)
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := LogSender{Log: zerolog.New(&buf)}
	require.NoError(t, s.Send(context.Background(), Message{Subject: "Daily", Attachment: "x.csv"}))
	assert.Contains(t, buf.String(), `"subject":"Daily"`)
	assert.Contains(t, buf.String(), `"attachment":"x.csv"`)
}

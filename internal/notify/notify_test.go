package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	mail "github.com/go-mail/mail/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/credit-applier/internal/status"
	"github.com/jonathan/credit-applier/internal/types"
)

func testSummary() Summary {
	return Summary{
		RunID:    "run-1",
		State:    types.RunStateFinished,
		Title:    "records processed with warnings",
		Lines:    []string{"Applied: 2", "Failed: 1"},
		Warnings: []string{"Ivanova A.: <homework> failed"},
	}
}

func TestConsole_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := NewConsole(status.NewConsole(&buf))

	require.NoError(t, n.Notify(context.Background(), testSummary()))
	assert.Contains(t, buf.String(), "records processed with warnings")
	assert.Contains(t, buf.String(), "Applied: 2")
}

func TestMailer_Notify(t *testing.T) {
	m, err := NewMailer(MailerConfig{
		Host: "smtp.example.org",
		Port: 587,
		From: "Credit Agent <agent@example.org>",
		To:   []string{"a@example.org", "b@example.org"},
	})
	require.NoError(t, err)

	var sent *mail.Message
	m.send = func(msg *mail.Message) error {
		sent = msg
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), testSummary()))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"Credit run finished: records processed with warnings"}, sent.GetHeader("Subject"))

	var raw bytes.Buffer
	_, err = sent.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "Applied: 2")
}

func TestMailer_SendFailure(t *testing.T) {
	m, err := NewMailer(MailerConfig{Host: "smtp.example.org", From: "a@example.org", To: []string{"b@example.org"}})
	require.NoError(t, err)
	m.send = func(*mail.Message) error { return errors.New("connection refused") }

	s := testSummary()
	s.State = types.RunStateAborted
	err = m.Notify(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewMailer_RequiresConfig(t *testing.T) {
	_, err := NewMailer(MailerConfig{})
	assert.Error(t, err)

	_, err = NewMailer(MailerConfig{Host: "smtp.example.org", From: "a@example.org"})
	assert.Error(t, err)
}

func TestRenderSummary_EscapesHTML(t *testing.T) {
	body, err := renderSummary(testSummary())
	require.NoError(t, err)
	assert.Contains(t, body, "&lt;homework&gt;")
	assert.Contains(t, body, "Run run-1")
}

func TestMailerConfigFromEnv(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.org")
	t.Setenv("SMTP_PORT", "")
	t.Setenv("SMTP_FROM", "agent@example.org")
	t.Setenv("NOTIFY_EMAIL", " a@example.org, ,b@example.org ")
	t.Setenv("SMTP_SKIP_TLS_VERIFY", "1")

	cfg := MailerConfigFromEnv()
	assert.Equal(t, 587, cfg.Port)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, cfg.To)
	assert.True(t, cfg.SkipTLSVerify)
	assert.True(t, cfg.Enabled())
}

func TestMulti_JoinsErrors(t *testing.T) {
	failing := notifierFunc(func(context.Context, Summary) error { return errors.New("boom") })
	calls := 0
	ok := notifierFunc(func(context.Context, Summary) error { calls++; return nil })

	err := Multi{failing, nil, ok}.Notify(context.Background(), testSummary())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type notifierFunc func(ctx context.Context, s Summary) error

func (f notifierFunc) Notify(ctx context.Context, s Summary) error { return f(ctx, s) }

package emails

import (
	"context"
	"testing"
	"time"

	smtpmock "github.com/mocktools/go-smtp-mock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outbox-sh/outbox/internal/config"
)

func TestSMTPSender_Send(t *testing.T) {
	server := smtpmock.New(smtpmock.ConfigurationAttr{
		LogToStdout:       false,
		LogServerActivity: false,
	})
	require.NoError(t, server.Start())
	defer func() { _ = server.Stop() }()

	cfg := &config.EmailConfig{
		SMTPHost:    "127.0.0.1",
		SMTPPort:    server.PortNumber(),
		FromEmail:   "noreply@example.com",
		FromName:    "OutBox",
		SendTimeout: 5 * time.Second,
	}
	sender := NewSMTPSender(cfg, testLogger())

	result, err := sender.Send(context.Background(), SendOptions{
		To:       "alice@example.com",
		From:     "noreply@example.com",
		FromName: "OutBox",
		Subject:  "Welcome",
		Body:     "Hello <b>Alice</b>",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.MessageID)

	messages := server.Messages()
	require.Len(t, messages, 1)
	msg := messages[0].MsgRequest()
	assert.Contains(t, msg, "Subject: Welcome")
	// Markup in the body must go out as HTML, not as escaped plain text
	assert.Contains(t, msg, "text/html")
	assert.Contains(t, msg, "Hello <b>Alice</b>")
}

func TestSMTPSender_ConnectionRefused(t *testing.T) {
	cfg := &config.EmailConfig{
		SMTPHost:    "127.0.0.1",
		SMTPPort:    1, // nothing listens here
		FromEmail:   "noreply@example.com",
		SendTimeout: time.Second,
	}
	sender := NewSMTPSender(cfg, testLogger())

	_, err := sender.Send(context.Background(), SendOptions{
		To:      "alice@example.com",
		From:    "noreply@example.com",
		Subject: "Welcome",
		Body:    "Hello",
	})
	require.Error(t, err)
}

func TestNoopSender_Send(t *testing.T) {
	sender := NewNoopSender(testLogger())

	result, err := sender.Send(context.Background(), SendOptions{
		To:      "alice@example.com",
		Subject: "Welcome",
		Body:    "Hello",
	})
	require.NoError(t, err)
	assert.Contains(t, result.MessageID, "noop-")
}

func TestNewSender_Selection(t *testing.T) {
	disabled := testConfig()
	disabled.Email.Enabled = false
	_, ok := NewSender(disabled, testLogger()).(*NoopSender)
	assert.True(t, ok, "disabled email should use the no-op sender")

	enabled := testConfig()
	enabled.Email.Enabled = true
	enabled.Email.SMTPHost = "smtp.example.com"
	enabled.Email.SMTPPort = 587
	_, ok = NewSender(enabled, testLogger()).(*SMTPSender)
	assert.True(t, ok, "enabled email should use the SMTP sender")
}

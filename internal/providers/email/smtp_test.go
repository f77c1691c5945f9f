package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPProviderSendTemplate(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 2525, From: "billing@example.com"})
	p.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"ana@example.com"}, "invoice_sent", map[string]any{
		"client_name":    "Ana",
		"reference":      "monthly-retainer-3",
		"invoice_number": 42,
		"total":          "119.99",
		"currency":       "EUR",
		"due_date":       "2026-02-14",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Invoice monthly-retainer-3\r\n")
	assert.Contains(t, gotMsg, "119.99 EUR")
	assert.Contains(t, gotMsg, "Hello Ana")
}

func TestSMTPProviderRejectsEmptyRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}

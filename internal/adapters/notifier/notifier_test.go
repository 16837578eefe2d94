package notifier

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/mocks"
)

func testNotice() domain.ApprovalNotice {
	return domain.ApprovalNotice{
		OperatorContact: "operator@example.com",
		RequesterName:   "Alice",
		ConnectionID:    7,
		Links: domain.LinkPair{
			Accept: "http://relay.test/approve?action=ACCEPT&user_id=7",
			Reject: "http://relay.test/approve?action=REJECT&user_id=7",
		},
		RequestedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBody_ContainsBothLinks(t *testing.T) {
	body := Body(testNotice())

	assert.Contains(t, body, "Alice wants to join the chat.")
	assert.Contains(t, body, "action=ACCEPT&user_id=7")
	assert.Contains(t, body, "action=REJECT&user_id=7")
	assert.Contains(t, body, "2024-05-01T12:00:00Z")
	assert.Less(t, strings.Index(body, "ACCEPT"), strings.Index(body, "REJECT"))
}

func TestSubject_StripsLineBreaks(t *testing.T) {
	notice := testNotice()
	notice.RequesterName = "Mallory\r\nBcc: victim@example.com"

	subject := Subject(notice)
	assert.NotContains(t, subject, "\n")
	assert.NotContains(t, subject, "\r")
	assert.True(t, strings.HasPrefix(subject, "Join request from Mallory"))
}

func TestBuildMessage(t *testing.T) {
	smtpCfg := config.SMTPConfig{From: "relay@example.com"}

	msg, err := buildMessage(smtpCfg, testNotice())
	require.NoError(t, err)
	assert.Equal(t, []string{"<operator@example.com>"}, msg.GetToString())
	assert.Equal(t, []string{"<relay@example.com>"}, msg.GetFromString())

	notice := testNotice()
	notice.OperatorContact = ""
	_, err = buildMessage(smtpCfg, notice)
	assert.ErrorIs(t, err, ErrNoOperatorContact)

	notice.OperatorContact = "not an address"
	_, err = buildMessage(smtpCfg, notice)
	assert.Error(t, err)
}

func TestTLSPolicy(t *testing.T) {
	assert.Equal(t, mail.NoTLS, tlsPolicy("none"))
	assert.Equal(t, mail.TLSOpportunistic, tlsPolicy("Opportunistic"))
	assert.Equal(t, mail.TLSMandatory, tlsPolicy("mandatory"))
	assert.Equal(t, mail.TLSMandatory, tlsPolicy(""))
}

func TestNew_SelectsByHost(t *testing.T) {
	cfg := mocks.NewMockConfigProvider()
	logger := mocks.NewMockLogger()

	_, isLog := New(logger, cfg).(*LogNotifier)
	assert.True(t, isLog)

	cfg.Update(func(c *config.Config) { c.SMTP.Host = "smtp.example.com" })
	_, isSMTP := New(logger, cfg).(*SMTPNotifier)
	assert.True(t, isSMTP)
}

func TestLogNotifier_LogsLinks(t *testing.T) {
	logger := mocks.NewMockLogger()
	require.NoError(t, NewLogNotifier(logger).NotifyApprovalRequest(context.Background(), testNotice()))
	assert.True(t, logger.HasEntry("INFO", "Approval requested"))
}

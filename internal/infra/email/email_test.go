package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSenderRejectsHeaderInjection(t *testing.T) {
	err := SMTPSender{Host: "localhost", Port: "25"}.Send(context.Background(), Message{To: "a@b.c\r\nBcc: x@y.z"})
	require.Error(t, err)
}

func TestMessages(t *testing.T) {
	m := VerificationMessage("a@b.c", "https://api.kaiden.test", "tok")
	assert.Contains(t, m.Body, "https://api.kaiden.test/verify?token=tok")

	r := PasswordResetMessage("a@b.c", "https://app.kaiden.test", "tok")
	assert.Contains(t, r.Body, "https://app.kaiden.test/reset-password?token=tok")

	tr := TrialEndingMessage("a@b.c", "https://app.kaiden.test", 2)
	assert.Contains(t, tr.Body, "2 day(s)")

	o := &Outbox{}
	require.NoError(t, o.Send(context.Background(), m))
	assert.Len(t, o.Messages(), 1)
}

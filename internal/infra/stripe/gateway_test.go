package stripe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v75/webhook"
)

func signed(secret string, payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
}

func TestConstructEventSeparatesBadSignatureFromBadPayload(t *testing.T) {
	gw := NewGateway("sk_test_x", "whsec_test")

	good := []byte(`{"id":"evt_1","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	ev, err := gw.ConstructEvent(good, signed("whsec_test", good))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "cus_1", ev.Data.Object["id"])

	_, err = gw.ConstructEvent(good, signed("whsec_other", good))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedEvent)

	malformed := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":"not-an-object"}}`)
	_, err = gw.ConstructEvent(malformed, signed("whsec_test", malformed))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestConstructEventWithoutWebhookSecret(t *testing.T) {
	gw := NewGateway("sk_test_x", "")
	_, err := gw.ConstructEvent([]byte(`{}`), "t=1,v1=00")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedEvent)
}

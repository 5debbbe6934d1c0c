package stripe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStripeStatus(t *testing.T) {
	s := func(v string) *string { return &v }

	assert.Equal(t, StatusNone, NormalizeStripeStatus(nil))
	assert.Equal(t, StatusNone, NormalizeStripeStatus(s("  ")))
	assert.Equal(t, StatusActive, NormalizeStripeStatus(s(" active ")))
	assert.Equal(t, StatusUnpaid, NormalizeStripeStatus(s("unpaid")))
	assert.Equal(t, StatusCanceled, NormalizeStripeStatus(s("incomplete_expired")))
	assert.Equal(t, "incomplete", NormalizeStripeStatus(s("incomplete")))
}

func TestRevokes(t *testing.T) {
	assert.True(t, Revokes("canceled"))
	assert.True(t, Revokes("unpaid"))
	assert.False(t, Revokes("past_due"))
	assert.False(t, Revokes("active"))
}

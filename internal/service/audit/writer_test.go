package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaiden-app/internal/dbtest"
	auditdomain "kaiden-app/internal/domain/audit"
)

func TestRecordAndList(t *testing.T) {
	db := dbtest.New(t)
	w := NewWriter(db, nil)
	ctx := context.Background()

	require.NoError(t, w.Record(ctx, Entry{
		UserID:     UserRef(1),
		Action:     ActionPurchaseCompleted,
		Resource:   "feature_purchase",
		ResourceID: "7",
		Details:    map[string]any{"feature": "ai_chat"},
	}))
	require.NoError(t, w.Record(ctx, Entry{
		UserID:   UserRef(2),
		Action:   ActionPaymentFailed,
		Resource: "invoice",
		Severity: auditdomain.SeverityWarning,
	}))

	all, err := w.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ActionPaymentFailed, all[0].Action)

	mine, err := w.List(ctx, UserRef(1), 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, auditdomain.SeverityInfo, mine[0].Severity)
	assert.JSONEq(t, `{"feature":"ai_chat"}`, string(mine[0].Details))
}

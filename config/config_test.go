package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", "")
	t.Setenv("APP_URL", "https://app.kaiden.test/")

	require.NoError(t, Load())

	assert.Equal(t, "8080", PORT)
	assert.Equal(t, "sqlite", DB_DRIVER)
	assert.Equal(t, "kaiden.db", DB_URL)
	assert.Equal(t, "https://app.kaiden.test", APP_URL)
	assert.Equal(t, "none", EHR_SYSTEM)
	assert.Equal(t, "*/15 * * * *", CRON_EXPIRE_PURCHASES)
	assert.Equal(t, 5, CHECKOUT_RATE_BURST)
	assert.InDelta(t, 0.5, CHECKOUT_RATE_PER_SEC, 0.0001)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_URL", "")

	err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DB_URL")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("DB_URL", "somewhere")

	require.Error(t, Load())
}

func TestGoogleEnabled(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	require.NoError(t, Load())
	assert.False(t, GoogleEnabled())

	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost/cb")
	require.NoError(t, Load())
	assert.True(t, GoogleEnabled())
}

package features

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	featuredomain "kaiden-app/internal/domain/features"
)

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil)
	r := gin.New()
	r.GET("/features", h.ListFeatures)
	r.GET("/features/pricing", h.ListPricing)
	r.GET("/features/pricing/:feature", h.GetPricing)
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListFeatures(t *testing.T) {
	w := get(router(), "/features")
	require.Equal(t, http.StatusOK, w.Code)

	var out []FeatureDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, len(featuredomain.All()))
	for _, f := range out {
		if f.Name == "medical_billing" {
			assert.Equal(t, featuredomain.TierStartup, f.MinimumTier)
			assert.True(t, f.Purchasable)
		}
	}
}

func TestPricing(t *testing.T) {
	r := router()

	w := get(r, "/features/pricing/medical_billing")
	require.Equal(t, http.StatusOK, w.Code)
	var one OfferDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, int64(4900), one.Price)
	assert.Equal(t, "$49.00", one.FormattedPrice)
	require.NotNil(t, one.DurationDays)
	assert.Equal(t, 30, *one.DurationDays)

	assert.Equal(t, http.StatusNotFound, get(r, "/features/pricing/teleport").Code)

	w = get(r, "/features/pricing")
	require.Equal(t, http.StatusOK, w.Code)
	var all []OfferDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Feature, all[i].Feature)
	}
}

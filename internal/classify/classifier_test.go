package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/config"
	"github.com/propagentic/maintenance-service/internal/domain"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

func newTestClassifier(endpoint string) *HTTPClassifier {
	return NewHTTPClassifier(config.ClassifierConfig{
		Endpoint:       endpoint,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
	}, zap.NewNop())
}

func TestClassifySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "no hot water", req["description"])
		_ = json.NewEncoder(w).Encode(map[string]any{"category": "plumbing", "urgency": 4})
	}))
	defer server.Close()

	result, err := newTestClassifier(server.URL).Classify(context.Background(), "no hot water")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryPlumbing, result.Category)
	assert.Equal(t, 4, result.Urgency)
}

func TestClassifyUnknownCategoryFallsBackToGeneral(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"category": "landscaping", "urgency": 2})
	}))
	defer server.Close()

	result, err := newTestClassifier(server.URL).Classify(context.Background(), "overgrown hedge")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryGeneral, result.Category)
}

func TestClassifyClampsUrgency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"category": "electrical", "urgency": 11})
	}))
	defer server.Close()

	result, err := newTestClassifier(server.URL).Classify(context.Background(), "sparks from outlet")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Urgency)
}

func TestClassifyMissingFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"category": "plumbing"})
	}))
	defer server.Close()

	_, err := newTestClassifier(server.URL).Classify(context.Background(), "leak")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestClassifyProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClassifier(server.URL).Classify(context.Background(), "leak")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, "CLASSIFICATION_ERROR", apperrors.ToDomainError(err).Code)
}

func TestNewHTTPClassifierUnconfigured(t *testing.T) {
	assert.Nil(t, NewHTTPClassifier(config.ClassifierConfig{}, zap.NewNop()))
}

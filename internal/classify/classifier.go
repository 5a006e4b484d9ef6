package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/config"
	"github.com/propagentic/maintenance-service/internal/domain"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// Result is a classifier verdict for a ticket description.
type Result struct {
	Category domain.TicketCategory
	Urgency  int
}

// Classifier is the consumed AI classification capability.
type Classifier interface {
	Classify(ctx context.Context, description string) (*Result, error)
}

// HTTPClassifier calls an external classification provider over HTTP.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPClassifier builds a classifier client with a bounded timeout.
// Returns nil when no endpoint is configured.
func NewHTTPClassifier(cfg config.ClassifierConfig, logger *zap.Logger) *HTTPClassifier {
	if cfg.Endpoint == "" {
		logger.Warn("CLASSIFIER_ENDPOINT not provided; classification disabled")
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClassifier{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type classifyRequest struct {
	Description string `json:"description"`
}

type classifyResponse struct {
	Category *string `json:"category"`
	Urgency  *int    `json:"urgency"`
}

// Classify submits the description and validates the provider's verdict.
// Provider failures, timeouts and malformed responses all surface as a
// retryable classification error.
func (c *HTTPClassifier) Classify(ctx context.Context, description string) (*Result, error) {
	body, err := json.Marshal(classifyRequest{Description: description})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewClassificationError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewClassificationError(fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewClassificationError(fmt.Errorf("decode response: %w", err))
	}
	return validateResponse(parsed, c.logger)
}

func validateResponse(parsed classifyResponse, logger *zap.Logger) (*Result, error) {
	if parsed.Category == nil || parsed.Urgency == nil {
		return nil, apperrors.NewClassificationError(fmt.Errorf("missing required fields in provider response"))
	}
	category := domain.TicketCategory(*parsed.Category)
	if !domain.ValidCategory(category) {
		logger.Warn("unknown category from classifier; using general",
			zap.String("category", string(category)))
		category = domain.CategoryGeneral
	}
	return &Result{
		Category: category,
		Urgency:  domain.ClampUrgency(*parsed.Urgency),
	}, nil
}

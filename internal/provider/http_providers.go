package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/propagentic/maintenance-service/internal/config"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

func newHTTPClient(cfg config.ProviderConfig) *http.Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func postJSON(ctx context.Context, client *http.Client, endpoint, channel string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.NewDeliveryError(channel, err)
	}
	return resp, nil
}

type httpEmailSender struct {
	endpoint string
	from     string
	client   *http.Client
}

// NewEmailSender builds the email provider client, nil when unconfigured.
func NewEmailSender(cfg config.ProviderConfig) EmailSender {
	if cfg.EmailEndpoint == "" {
		return nil
	}
	return &httpEmailSender{
		endpoint: cfg.EmailEndpoint,
		from:     cfg.EmailFrom,
		client:   newHTTPClient(cfg),
	}
}

func (s *httpEmailSender) Send(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{
		"from":    s.from,
		"to":      to,
		"subject": subject,
		"body":    body,
	}
	resp, err := postJSON(ctx, s.client, s.endpoint, "email", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperrors.NewDeliveryError("email", fmt.Errorf("provider returned status %d", resp.StatusCode))
	}
	return nil
}

type httpSMSSender struct {
	endpoint string
	client   *http.Client
}

// NewSMSSender builds the SMS provider client, nil when unconfigured.
func NewSMSSender(cfg config.ProviderConfig) SMSSender {
	if cfg.SMSEndpoint == "" {
		return nil
	}
	return &httpSMSSender{
		endpoint: cfg.SMSEndpoint,
		client:   newHTTPClient(cfg),
	}
}

func (s *httpSMSSender) Send(ctx context.Context, phone, message string) error {
	payload := map[string]string{
		"to":      phone,
		"message": message,
	}
	resp, err := postJSON(ctx, s.client, s.endpoint, "sms", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperrors.NewDeliveryError("sms", fmt.Errorf("provider returned status %d", resp.StatusCode))
	}
	return nil
}

type httpPushSender struct {
	endpoint string
	client   *http.Client
}

// NewPushSender builds the push provider client, nil when unconfigured.
func NewPushSender(cfg config.ProviderConfig) PushSender {
	if cfg.PushEndpoint == "" {
		return nil
	}
	return &httpPushSender{
		endpoint: cfg.PushEndpoint,
		client:   newHTTPClient(cfg),
	}
}

type pushRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	FailedTokens []string `json:"failed_tokens"`
}

func (s *httpPushSender) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]PushResult, error) {
	resp, err := postJSON(ctx, s.client, s.endpoint, "push", pushRequest{
		Tokens: tokens,
		Title:  title,
		Body:   body,
		Data:   data,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apperrors.NewDeliveryError("push", fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewDeliveryError("push", fmt.Errorf("decode response: %w", err))
	}

	failed := make(map[string]struct{}, len(parsed.FailedTokens))
	for _, token := range parsed.FailedTokens {
		failed[token] = struct{}{}
	}
	results := make([]PushResult, 0, len(tokens))
	for _, token := range tokens {
		result := PushResult{Token: token}
		if _, ok := failed[token]; ok {
			result.Err = fmt.Errorf("destination rejected token")
		}
		results = append(results, result)
	}
	return results, nil
}

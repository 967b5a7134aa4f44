package services

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WebhookService delivers workflow webhooks fire-and-forget: Send validates
// and constructs the request, then hands delivery to a goroutine bounded by
// the client timeout. Delivery failures are logged but never surface into a
// workflow's success/failure determination.
type WebhookService struct {
	client *http.Client
	logger *logrus.Logger
}

func NewWebhookService(timeout time.Duration, logger *logrus.Logger) *WebhookService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &WebhookService{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send issues the call without awaiting delivery. Only construction errors are
// returned.
func (s *WebhookService) Send(rawURL, method string, payload []byte) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook url scheme: %s", u.Scheme)
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("unsupported webhook method: %s", method)
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	go func() {
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warnf("webhook %s %s: %v", method, rawURL, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			s.logger.Warnf("webhook %s %s: status %d", method, rawURL, resp.StatusCode)
		}
	}()
	return nil
}

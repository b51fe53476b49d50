package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"learner-retention/internal/domain"
	"learner-retention/internal/infra/metrics"
)

// EmailClient отправляет письма через HTTP API почтового провайдера.
type EmailClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
	from    string
}

var _ domain.EmailSender = (*EmailClient)(nil)

// EmailConfig описывает настройки почтового провайдера.
type EmailConfig struct {
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// NewEmail создаёт почтового клиента.
func NewEmail(cfg EmailConfig) *EmailClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.From,
	}
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type emailResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// SendEmail отправляет одно письмо.
func (c *EmailClient) SendEmail(ctx context.Context, to string, payload domain.MessagePayload) (domain.ChannelResult, error) {
	if c.baseURL == "" {
		return domain.ChannelResult{Channel: domain.ChannelEmail}, fmt.Errorf("email: провайдер не настроен")
	}
	body, err := json.Marshal(emailRequest{From: c.from, To: to, Subject: payload.Subject, Text: payload.Body})
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelEmail}, fmt.Errorf("email: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelEmail}, fmt.Errorf("email: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("email", "send", "messages", start, err)
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelEmail}, fmt.Errorf("email: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelEmail}, fmt.Errorf("email: read response: %w", err)
	}
	var parsed emailResponse
	_ = json.Unmarshal(respBody, &parsed)
	if resp.StatusCode >= 300 {
		msg := parsed.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return domain.ChannelResult{Channel: domain.ChannelEmail, Error: msg}, fmt.Errorf("email: %s", msg)
	}
	return domain.ChannelResult{Channel: domain.ChannelEmail, Success: true, MessageID: parsed.MessageID}, nil
}

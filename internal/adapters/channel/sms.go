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

// SMSClient отправляет SMS через HTTP API оператора рассылок.
type SMSClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
	sender  string
}

var _ domain.SMSSender = (*SMSClient)(nil)

// SMSConfig описывает настройки SMS-провайдера.
type SMSConfig struct {
	BaseURL string
	APIKey  string
	Sender  string
	Timeout time.Duration
}

// NewSMS создаёт SMS-клиента.
func NewSMS(cfg SMSConfig) *SMSClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		sender:  cfg.Sender,
	}
}

type smsRequest struct {
	Sender string `json:"sender"`
	To     string `json:"to"`
	Text   string `json:"text"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// SendSMS отправляет одно сообщение.
func (c *SMSClient) SendSMS(ctx context.Context, to string, payload domain.MessagePayload) (domain.ChannelResult, error) {
	if c.baseURL == "" {
		return domain.ChannelResult{Channel: domain.ChannelSMS}, fmt.Errorf("sms: провайдер не настроен")
	}
	body, err := json.Marshal(smsRequest{Sender: c.sender, To: to, Text: payload.Body})
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelSMS}, fmt.Errorf("sms: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sms", bytes.NewReader(body))
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelSMS}, fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("sms", "send", "sms", start, err)
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelSMS}, fmt.Errorf("sms: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return domain.ChannelResult{Channel: domain.ChannelSMS}, fmt.Errorf("sms: read response: %w", err)
	}
	var parsed smsResponse
	_ = json.Unmarshal(respBody, &parsed)
	if resp.StatusCode >= 300 {
		msg := parsed.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return domain.ChannelResult{Channel: domain.ChannelSMS, Error: msg}, fmt.Errorf("sms: %s", msg)
	}
	return domain.ChannelResult{Channel: domain.ChannelSMS, Success: true, MessageID: parsed.MessageID}, nil
}

package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"learner-retention/internal/domain"
)

func TestSendEmail(t *testing.T) {
	var captured emailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("неверный путь: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("неверная авторизация: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("не удалось прочитать тело: %v", err)
		}
		_ = json.NewEncoder(w).Encode(emailResponse{MessageID: "em-42"})
	}))
	defer srv.Close()

	client := NewEmail(EmailConfig{BaseURL: srv.URL, APIKey: "key-1", From: "team@platform.dev"})
	result, err := client.SendEmail(context.Background(), "learner@example.com", domain.MessagePayload{
		Subject: "We miss you",
		Body:    "Come back",
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.Success || result.MessageID != "em-42" {
		t.Fatalf("неверный результат: %+v", result)
	}
	if captured.From != "team@platform.dev" || captured.To != "learner@example.com" {
		t.Fatalf("неверный запрос: %+v", captured)
	}
}

func TestSendEmailProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(emailResponse{Error: "rate limited"})
	}))
	defer srv.Close()

	client := NewEmail(EmailConfig{BaseURL: srv.URL, APIKey: "key-1", From: "team@platform.dev"})
	result, err := client.SendEmail(context.Background(), "learner@example.com", domain.MessagePayload{Subject: "x", Body: "y"})
	if err == nil {
		t.Fatalf("ожидали ошибку провайдера")
	}
	if result.Success || result.Error != "rate limited" {
		t.Fatalf("ожидали зафиксированную причину, получили %+v", result)
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	client := NewEmail(EmailConfig{})
	if _, err := client.SendEmail(context.Background(), "a@b.c", domain.MessagePayload{}); err == nil {
		t.Fatalf("без базового URL отправка должна падать")
	}
}

func TestSendSMS(t *testing.T) {
	var captured smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sms" {
			t.Errorf("неверный путь: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("не удалось прочитать тело: %v", err)
		}
		_ = json.NewEncoder(w).Encode(smsResponse{MessageID: "sms-7"})
	}))
	defer srv.Close()

	client := NewSMS(SMSConfig{BaseURL: srv.URL, APIKey: "key-2", Sender: "Platform"})
	result, err := client.SendSMS(context.Background(), "+15550001122", domain.MessagePayload{Body: "Log back in"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.Success || result.MessageID != "sms-7" {
		t.Fatalf("неверный результат: %+v", result)
	}
	if captured.Sender != "Platform" || captured.Text != "Log back in" {
		t.Fatalf("неверный запрос: %+v", captured)
	}
}

func TestSendSMSProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewSMS(SMSConfig{BaseURL: srv.URL, APIKey: "key-2", Sender: "Platform"})
	result, err := client.SendSMS(context.Background(), "+15550001122", domain.MessagePayload{Body: "x"})
	if err == nil {
		t.Fatalf("ожидали ошибку провайдера")
	}
	if result.Success || result.Error == "" {
		t.Fatalf("ожидали зафиксированную причину, получили %+v", result)
	}
}

package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/twiliowhatsapp"
)

func postWebhookForm(t *testing.T, svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, req)
	return rec
}

func TestTwilioService_SendMessage_Receipt(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "whatsapp:+911234567890", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	if len(mock.SentMessages) != 1 || mock.SentMessages[0].To != "911234567890" {
		t.Fatalf("expected canonicalized recipient, got %+v", mock.SentMessages)
	}

	select {
	case receipt := <-svc.Receipts():
		if receipt.Status != models.StatusTypeSent {
			t.Errorf("expected status %s, got %s", models.StatusTypeSent, receipt.Status)
		}
	default:
		t.Fatal("expected receipt, got none")
	}
}

func TestTwilioService_WebhookEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+911234567890")
	form.Set("Body", "hello")
	form.Set("ProfileName", "Asha")

	rec := postWebhookForm(t, svc, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, want %d", rec.Code, http.StatusOK)
	}

	select {
	case response := <-svc.Responses():
		if response.From != "whatsapp:+911234567890" {
			t.Errorf("response.From = %q", response.From)
		}
		if response.Body != "hello" {
			t.Errorf("response.Body = %q", response.Body)
		}
		if response.UserName != "Asha" {
			t.Errorf("response.UserName = %q, want Asha", response.UserName)
		}
	default:
		t.Fatal("expected response on channel, got none")
	}
}

func TestTwilioService_WebhookMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+911234567890")

	rec := postWebhookForm(t, svc, form)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("webhook status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	select {
	case response := <-svc.Responses():
		t.Fatalf("expected no response, got %+v", response)
	default:
	}
}

func TestTwilioService_WebhookAfterStopDropsMessage(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	form := url.Values{}
	form.Set("From", "whatsapp:+911234567890")
	form.Set("Body", "hello")

	// Must not panic on the closed channel.
	rec := postWebhookForm(t, svc, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, want %d", rec.Code, http.StatusOK)
	}
}

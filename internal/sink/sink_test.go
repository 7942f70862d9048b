package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devblac/deposit-listener/internal/config"
	"github.com/devblac/deposit-listener/internal/record"
)

func TestSlackSenderRendersTemplate(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewSlackSender(server.URL, "DEPOSIT {{.Chain}} {{.Amount}} {{short_addr .Recipient}}")
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	err = sender.Send(context.Background(), EventPayload{
		Chain: "avax", Amount: "1000", Recipient: "0xBBBB567890abcdefBBBB",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if !contains(got, "DEPOSIT avax 1000 0xBBBB...BBBB") {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestWebhookCarriesDeposit(t *testing.T) {
	var body struct {
		Text    string       `json:"text"`
		Deposit EventPayload `json:"deposit"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender, err := FromConfig(config.Sink{ID: "h", Type: "webhook", URL: server.URL, Method: "put"})
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	rec := record.Record{
		Chain:           "bsc",
		Token:           "0x00000000000000000000000000000000000000aA",
		Recipient:       "0x00000000000000000000000000000000000000bB",
		Amount:          "123456789012345678901234567890",
		TransactionHash: "0xdead",
		Address:         "0x00000000000000000000000000000000000000cC",
		BlockNumber:     102,
	}
	if err := sender.Send(context.Background(), PayloadFromRecord(rec, "deposits.csv")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if body.Deposit.Amount != rec.Amount || body.Deposit.BlockNumber != 102 || body.Deposit.LogFile != "deposits.csv" {
		t.Fatalf("unexpected deposit body: %+v", body.Deposit)
	}
	if !contains(body.Text, "DEPOSIT bsc 123456789012345678901234567890") {
		t.Fatalf("unexpected default text: %s", body.Text)
	}
}

func TestWebhookStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, http.MethodPost, "msg", nil)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	err = sender.Send(context.Background(), EventPayload{Chain: "avax"})
	if err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestFromConfigRejectsUnknownType(t *testing.T) {
	if _, err := FromConfig(config.Sink{ID: "x", Type: "pager"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func contains(s, substr string) bool { return strings.Contains(s, substr) }

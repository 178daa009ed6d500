package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestClient_SubmitBill_OK(t *testing.T) {
	billUUID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/charges" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != billUUID.String() {
			t.Errorf("expected idempotency key %s, got %s", billUUID, r.Header.Get("Idempotency-Key"))
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "PAID"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 5*time.Second)
	status, err := c.SubmitBill(context.Background(), SubmitRequest{BillUUID: billUUID, AmountCents: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusPaid {
		t.Errorf("expected PAID, got %s", status)
	}
}

func TestClient_SubmitBill_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 402, "message": "card declined"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 5*time.Second)
	_, err := c.SubmitBill(context.Background(), SubmitRequest{BillUUID: uuid.New()})

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if gwErr.Code != 402 || gwErr.Message != "card declined" {
		t.Errorf("unexpected error payload: %+v", gwErr)
	}
}

func TestClient_SubmitBill_MalformedErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream blew up"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 5*time.Second)
	_, err := c.SubmitBill(context.Background(), SubmitRequest{BillUUID: uuid.New()})
	if err == nil {
		t.Fatal("expected error")
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		t.Fatalf("transport-level failure must not be a gateway error: %v", err)
	}
}

func TestClient_ListSettledTransfers(t *testing.T) {
	billUUID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recipients/acct_123/transfers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("status") != "settled" {
			t.Errorf("expected settled filter, got %q", r.URL.Query().Get("status"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transfers": []map[string]interface{}{{
				"id":           "tr_1",
				"payout_id":    "po_1",
				"bill_uuid":    billUUID.String(),
				"amount_cents": 100,
				"settled_at":   time.Now().UTC().Format(time.RFC3339),
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", 5*time.Second)
	transfers, err := c.ListSettledTransfers(context.Background(), "acct_123", time.Now().Add(-24*time.Hour), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}
	if transfers[0].ID != "tr_1" || transfers[0].BillUUID != billUUID {
		t.Errorf("unexpected transfer: %+v", transfers[0])
	}
}

package flutterwave

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *client {
	t.Helper()
	gw, err := New(logger.NewNop(), Config{
		SecretKey:  "sk_test",
		SecretHash: "hash_test",
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: retries,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := gw.(*client)
	c.backoff = time.Millisecond
	return c
}

func TestInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("Authorization=%q", got)
		}
		var body InitializeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.TxRef != "ref-1" || body.Currency != "NGN" || body.Meta["course_id"] != "c1" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.example/pay/abc"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	res, err := c.Initialize(context.Background(), InitializeRequest{
		TxRef:    "ref-1",
		Amount:   50,
		Currency: "ngn",
		Customer: Customer{Email: "a@example.com"},
		Meta:     map[string]string{"user_id": "u1", "course_id": "c1"},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if res.PaymentURL != "https://checkout.example/pay/abc" || res.TxRef != "ref-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestInitializeIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	_, err := c.Initialize(context.Background(), InitializeRequest{TxRef: "r", Amount: 1, Customer: Customer{Email: "a@b.c"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls=%d want 1", got)
	}
}

func TestVerifyTransactionRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/transactions/4242/verify" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","message":"verified","data":{
			"id":4242,"tx_ref":"ref-9","amount":50.5,"currency":"NGN","status":"successful",
			"customer":{"email":"a@example.com","name":"Ada"},
			"meta":{"user_id":"u1","course_id":"c1"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	tx, err := c.VerifyTransaction(context.Background(), "4242")
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls=%d want 3", calls)
	}
	if !tx.Successful() || tx.IDString() != "4242" || tx.TxRef != "ref-9" {
		t.Fatalf("unexpected tx %+v", tx)
	}
	if tx.AmountMinor() != 5050 {
		t.Fatalf("AmountMinor=%d want 5050", tx.AmountMinor())
	}
	if tx.Meta["user_id"] != "u1" || tx.Meta["course_id"] != "c1" {
		t.Fatalf("meta=%v", tx.Meta)
	}
	if len(tx.Raw) == 0 {
		t.Fatalf("expected raw payload")
	}
}

func TestVerifyTransactionDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"No transaction was found for this id","data":null}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	_, err := c.VerifyTransaction(context.Background(), "1")
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if he.Message != "No transaction was found for this id" {
		t.Fatalf("message=%q", he.Message)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestVerifyByReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/transactions/verify_by_reference" || r.URL.Query().Get("tx_ref") != "ref 7" {
			t.Errorf("unexpected %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"id":7,"tx_ref":"ref 7","amount":10,"currency":"USD","status":"failed",
			"meta":[{"metaname":"user_id","metavalue":"u7"},{"metaname":"course_id","metavalue":"c7"}]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	tx, err := c.VerifyByReference(context.Background(), "ref 7")
	if err != nil {
		t.Fatalf("VerifyByReference: %v", err)
	}
	if tx.Successful() {
		t.Fatalf("failed transaction reported successful")
	}
	if tx.Meta["user_id"] != "u7" || tx.Meta["course_id"] != "c7" {
		t.Fatalf("meta=%v", tx.Meta)
	}
}

func TestVerifyRespectsCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.VerifyTransaction(ctx, "1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		sig    string
		want   bool
	}{
		{"match", "abc", "abc", true},
		{"trimmed", "abc", " abc ", true},
		{"mismatch", "abc", "abd", false},
		{"empty signature", "abc", "", false},
		{"unset secret", "", "", false},
		{"prefix", "abc", "ab", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifySignature(tc.secret, tc.sig); got != tc.want {
				t.Fatalf("VerifySignature(%q,%q)=%v want %v", tc.secret, tc.sig, got, tc.want)
			}
		})
	}
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{"event":"charge.completed","data":{"id":99,"tx_ref":"ref-99","amount":25,"currency":"NGN","status":"successful"},
		"meta_data":{"user_id":"u","course_id":"c"}}`)
	ev, tx, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.Event != EventChargeCompleted || tx.IDString() != "99" || tx.AmountMinor() != 2500 {
		t.Fatalf("unexpected %+v %+v", ev, tx)
	}
	if tx.Meta["course_id"] != "c" {
		t.Fatalf("meta not merged: %v", tx.Meta)
	}
	if _, _, err := ParseWebhook([]byte(`{not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

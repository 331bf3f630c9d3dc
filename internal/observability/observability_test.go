package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsWritePrometheus(t *testing.T) {
	m := New()
	m.ObserveAPI("GET", "/api/courses", "200", 20*time.Millisecond)
	m.ObserveAPI("POST", "/api/payments/verify", "503", time.Second)
	m.ObserveReconcile("webhook", "successful", 150*time.Millisecond)
	m.IncEnrollmentCreated("paid")
	m.IncCertificateIssued()

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`ch_api_requests_total{method="GET",route="/api/courses",status="200"} 1.000000`,
		`ch_api_requests_error_total 1.000000`,
		`ch_payment_reconciles_total{source="webhook",outcome="successful"} 1.000000`,
		`ch_payment_reconcile_duration_seconds_bucket{source="webhook",le="0.25"} 1`,
		`ch_enrollments_created_total{path="paid"} 1.000000`,
		`ch_certificates_issued_total 1.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ObserveReconcile("verify", "failed", time.Millisecond)
	m.IncEnrollmentCreated("free")
	m.IncCertificateIssued()
	m.ApiInflightInc()
	m.ApiInflightDec()
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil WritePrometheus: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	cases := []struct {
		raw  string
		want map[string]string
	}{
		{"", nil},
		{"broken", nil},
		{"a=1, b = 2 ,c=", map[string]string{"a": "1", "b": "2"}},
		{"token=x=y", map[string]string{"token": "x=y"}},
	}
	for _, tc := range cases {
		got := parseHeaders(tc.raw)
		if len(got) != len(tc.want) {
			t.Fatalf("parseHeaders(%q)=%v want %v", tc.raw, got, tc.want)
		}
		for k, v := range tc.want {
			if got[k] != v {
				t.Fatalf("parseHeaders(%q)[%s]=%q want %q", tc.raw, k, got[k], v)
			}
		}
	}
}

func TestParseRatio(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"0.5", 0.5},
		{"-1", 0},
		{"7", 1},
		{"nope", 0.1},
	}
	for _, tc := range cases {
		if got := parseRatio(tc.raw, 0.1); got != tc.want {
			t.Errorf("parseRatio(%q)=%v want %v", tc.raw, got, tc.want)
		}
	}
}

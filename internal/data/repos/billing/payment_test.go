package billing

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/coursehub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursehub-backend/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestPaymentRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC()
	repo := NewPaymentRepo(db, testutil.Logger(t))

	userID, courseID := uuid.New(), uuid.New()
	p := &types.Payment{
		TxRef:    "tx_1",
		UserID:   &userID,
		CourseID: &courseID,
		Amount:   500000,
		Currency: "NGN",
		Status:   types.PaymentStatusInitialized,
	}
	created, err := repo.CreateIfAbsent(dbc, p)
	if err != nil || !created {
		t.Fatalf("CreateIfAbsent: created=%v err=%v", created, err)
	}
	dup := &types.Payment{TxRef: "tx_1", Amount: 1, Currency: "NGN", Status: types.PaymentStatusInitialized}
	if created, err := repo.CreateIfAbsent(dbc, dup); err != nil || created {
		t.Fatalf("duplicate CreateIfAbsent: created=%v err=%v", created, err)
	}

	moved, err := repo.MarkSuccessful(dbc, p.ID, map[string]interface{}{"transaction_id": "9001", "verified_via": types.VerifiedViaVerify})
	if err != nil || !moved {
		t.Fatalf("MarkSuccessful: moved=%v err=%v", moved, err)
	}
	moved, err = repo.MarkSuccessful(dbc, p.ID, map[string]interface{}{"verified_via": types.VerifiedViaWebhook})
	if err != nil || moved {
		t.Fatalf("second MarkSuccessful must not transition: moved=%v err=%v", moved, err)
	}

	if err := repo.MarkFailed(dbc, p.ID, map[string]interface{}{"failure_reason": "late failure"}); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err := repo.GetByTransactionID(dbc, "9001")
	if err != nil || got == nil {
		t.Fatalf("GetByTransactionID: err=%v", err)
	}
	if !got.IsSuccessful() || got.FailureReason != "" || got.VerifiedVia != types.VerifiedViaVerify {
		t.Fatalf("successful payment must not be downgraded: %+v", got)
	}

	enrollmentID := uuid.New()
	if err := repo.AttachEnrollment(dbc, p.ID, enrollmentID); err != nil {
		t.Fatalf("AttachEnrollment: %v", err)
	}
	got, _ = repo.GetByTxRef(dbc, "tx_1")
	if got.EnrollmentID == nil || *got.EnrollmentID != enrollmentID {
		t.Fatalf("enrollment not attached: %+v", got)
	}
}

func TestPaymentRepoTransactionIDUnique(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC()
	repo := NewPaymentRepo(db, testutil.Logger(t))

	a := &types.Payment{TxRef: "tx_a", TransactionID: strPtr("42"), Currency: "NGN", Status: types.PaymentStatusSuccessful}
	if _, err := repo.Create(dbc, []*types.Payment{a}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	b := &types.Payment{TxRef: "tx_b", TransactionID: strPtr("42"), Currency: "NGN", Status: types.PaymentStatusSuccessful}
	if _, err := repo.Create(dbc, []*types.Payment{b}); err == nil {
		t.Fatalf("expected unique violation on transaction_id")
	}
	// NULL transaction ids do not collide.
	c := &types.Payment{TxRef: "tx_c", Currency: "NGN", Status: types.PaymentStatusInitialized}
	d := &types.Payment{TxRef: "tx_d", Currency: "NGN", Status: types.PaymentStatusInitialized}
	if _, err := repo.Create(dbc, []*types.Payment{c, d}); err != nil {
		t.Fatalf("Create with null transaction ids: %v", err)
	}
}

func TestPaymentRepoRevenue(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC()
	repo := NewPaymentRepo(db, testutil.Logger(t))

	rows := []*types.Payment{
		{TxRef: "r1", Amount: 1000, Currency: "NGN", Status: types.PaymentStatusSuccessful},
		{TxRef: "r2", Amount: 2500, Currency: "NGN", Status: types.PaymentStatusSuccessful},
		{TxRef: "r3", Amount: 700, Currency: "USD", Status: types.PaymentStatusSuccessful},
		{TxRef: "r4", Amount: 9999, Currency: "NGN", Status: types.PaymentStatusFailed},
	}
	if _, err := repo.Create(dbc, rows); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rev, err := repo.RevenueByCurrency(dbc)
	if err != nil {
		t.Fatalf("RevenueByCurrency: %v", err)
	}
	if len(rev) != 2 || rev[0].Currency != "NGN" || rev[0].Amount != 3500 || rev[0].Count != 2 || rev[1].Amount != 700 {
		t.Fatalf("RevenueByCurrency: got=%+v", rev)
	}
	if n, err := repo.CountByStatus(dbc, types.PaymentStatusFailed); err != nil || n != 1 {
		t.Fatalf("CountByStatus: err=%v n=%d", err, n)
	}
	recent, err := repo.ListRecent(dbc, types.PaymentStatusSuccessful, 2)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecent: err=%v len=%d", err, len(recent))
	}
}

func TestWebhookEventRepoRecordDedupes(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC()
	repo := NewWebhookEventRepo(db, testutil.Logger(t))

	ev := &types.PaymentWebhookEvent{Provider: "flutterwave", ProviderEventID: "285959875", EventType: "charge.completed", SignatureValid: true}
	stored, created, err := repo.Record(dbc, ev)
	if err != nil || !created || stored.ID != ev.ID {
		t.Fatalf("Record: created=%v err=%v", created, err)
	}
	if err := repo.MarkProcessed(dbc, stored.ID, ""); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	again := &types.PaymentWebhookEvent{Provider: "flutterwave", ProviderEventID: "285959875", EventType: "charge.completed", SignatureValid: true}
	stored2, created, err := repo.Record(dbc, again)
	if err != nil || created {
		t.Fatalf("duplicate Record: created=%v err=%v", created, err)
	}
	if stored2.ID != ev.ID || stored2.ProcessedAt == nil {
		t.Fatalf("expected the original processed row, got %+v", stored2)
	}
}

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/coursehub-backend/internal/data/repos/testutil"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/flutterwave"
)

// initPaid seeds a published paid course, initializes a payment for a new
// student and settles it on the fake gateway with the given outcome.
func initPaid(t *testing.T, env *testEnv, svc PaymentService, amountMajor float64, status string) (*types.Course, Caller, *InitializeResult, *flutterwave.Transaction) {
	t.Helper()
	course, _ := testutil.SeedCourse(t, env.db, 500000, true, 3)
	_, caller := env.student(t)
	init, err := svc.InitializePayment(bgc(), caller, course.ID)
	if err != nil {
		t.Fatalf("InitializePayment: %v", err)
	}
	req := env.gateway.lastInit(t)
	tx := env.gateway.settle(init.TxRef, amountMajor, "NGN", status, req.Meta)
	return course, caller, init, tx
}

func TestInitializePayment(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, _ := testutil.SeedCourse(t, env.db, 500000, true, 2)
	u, caller := env.student(t)

	res, err := svc.InitializePayment(bgc(), caller, course.ID)
	if err != nil {
		t.Fatalf("InitializePayment: %v", err)
	}
	if res.PaymentURL == "" || res.TxRef == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	req := env.gateway.lastInit(t)
	if req.Amount != 5000 || req.Currency != "NGN" || req.Customer.Email != u.Email {
		t.Fatalf("unexpected gateway request %+v", req)
	}
	if req.Meta["user_id"] != u.ID.String() || req.Meta["course_id"] != course.ID.String() {
		t.Fatalf("meta=%v", req.Meta)
	}
	p, err := env.payments.GetByTxRef(bgc(), res.TxRef)
	if err != nil || p == nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if p.Status != types.PaymentStatusInitialized || p.Amount != 500000 {
		t.Fatalf("unexpected payment %+v", p)
	}
}

func TestInitializePaymentRejects(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	free, _ := testutil.SeedCourse(t, env.db, 0, true, 1)
	draft, _ := testutil.SeedCourse(t, env.db, 1000, false, 1)
	owned, _ := testutil.SeedCourse(t, env.db, 1000, true, 1)
	u, caller := env.student(t)
	testutil.SeedEnrollment(t, env.db, u.ID, owned.ID)

	cases := []struct {
		name   string
		caller Caller
		course *types.Course
		want   error
	}{
		{"anonymous", Caller{}, owned, apierr.ErrUnauthorized},
		{"free course", caller, free, apierr.ErrInvalidArgument},
		{"unpublished", caller, draft, apierr.ErrNotFound},
		{"already enrolled", caller, owned, apierr.ErrAlreadyEnrolled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.InitializePayment(bgc(), tc.caller, tc.course.ID)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestInitializePaymentGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.initErr = &flutterwave.HTTPError{StatusCode: http.StatusBadGateway}
	svc := env.paymentService()
	course, _ := testutil.SeedCourse(t, env.db, 1000, true, 1)
	_, caller := env.student(t)

	if _, err := svc.InitializePayment(bgc(), caller, course.ID); !errors.Is(err, apierr.ErrUpstreamUnavailable) {
		t.Fatalf("err=%v want upstream unavailable", err)
	}
	if n := countRows(t, env.db, &types.Payment{}); n != 0 {
		t.Fatalf("payments=%d want 0", n)
	}
}

func TestVerifyCreatesPaidEnrollmentOnce(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, init, tx := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)

	res, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), TxRef: init.TxRef, Caller: caller})
	if err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	if !res.EnrollmentCreated || res.AlreadyProcessed || res.Status != types.PaymentStatusSuccessful {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Enrollment == nil || res.Enrollment.Source != types.EnrollmentSourcePayment {
		t.Fatalf("unexpected enrollment %+v", res.Enrollment)
	}
	if res.Payment.EnrollmentID == nil || *res.Payment.EnrollmentID != res.Enrollment.ID {
		t.Fatalf("payment not linked to enrollment: %+v", res.Payment)
	}
	if res.Payment.VerifiedVia != types.VerifiedViaVerify {
		t.Fatalf("verified_via=%q", res.Payment.VerifiedVia)
	}

	again, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: caller})
	if err != nil {
		t.Fatalf("second ReconcilePayment: %v", err)
	}
	if !again.AlreadyProcessed || again.EnrollmentCreated {
		t.Fatalf("replay must be a no-op: %+v", again)
	}

	hook, err := svc.ReconcilePayment(bgc(), WebhookEvidence{
		RawBody:   webhookBody(t, flutterwave.EventChargeCompleted, tx),
		Signature: testWebhookSecret,
	})
	if err != nil {
		t.Fatalf("webhook after verify: %v", err)
	}
	if !hook.AlreadyProcessed {
		t.Fatalf("webhook after verify must be already processed: %+v", hook)
	}

	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 1 {
		t.Fatalf("enrollments=%d want 1", n)
	}
	if got := testutil.ReloadCourse(t, env.db, course.ID).Students; got != 1 {
		t.Fatalf("students=%d want 1", got)
	}
	if env.notifier.enrollments != 1 {
		t.Fatalf("enrollment notifications=%d want 1", env.notifier.enrollments)
	}
}

func TestConcurrentReconcileMaterializesOnce(t *testing.T) {
	env := newTestEnv(t)
	// Separate instances do not share a singleflight group, so the store has
	// to arbitrate.
	svcA, svcB := env.paymentService(), env.paymentService()
	course, caller, init, tx := initPaid(t, env, svcA, 5000, flutterwave.StatusSuccessful)
	body := webhookBody(t, flutterwave.EventChargeCompleted, tx)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan *ReconcileResult, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := svcA
			if i%2 == 1 {
				svc = svcB
			}
			var ev Evidence = VerifyEvidence{TransactionID: tx.IDString(), TxRef: init.TxRef, Caller: caller}
			if i%3 == 0 {
				ev = WebhookEvidence{RawBody: body, Signature: testWebhookSecret}
			}
			res, err := svc.ReconcilePayment(bgc(), ev)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Fatalf("reconcile: %v", err)
	}
	created := 0
	for r := range results {
		if r.EnrollmentCreated {
			created++
		}
		if r.Status != types.PaymentStatusSuccessful {
			t.Fatalf("status=%q", r.Status)
		}
	}
	if created != 1 {
		t.Fatalf("EnrollmentCreated reported %d times, want 1", created)
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 1 {
		t.Fatalf("enrollments=%d want 1", n)
	}
	if got := testutil.ReloadCourse(t, env.db, course.ID).Students; got != 1 {
		t.Fatalf("students=%d want 1", got)
	}
}

func TestSharedVerifySurvivesFirstCallerCancel(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, init, tx := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)
	env.gateway.entered = make(chan struct{}, 1)
	env.gateway.release = make(chan struct{})
	ev := VerifyEvidence{TransactionID: tx.IDString(), TxRef: init.TxRef, Caller: caller}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := svc.ReconcilePayment(dbctx.New(ctxA), ev)
		errA <- err
	}()
	select {
	case <-env.gateway.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("gateway verify never started")
	}

	type outcome struct {
		res *ReconcileResult
		err error
	}
	outB := make(chan outcome, 1)
	go func() {
		res, err := svc.ReconcilePayment(bgc(), ev)
		outB <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first caller err=%v want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("first caller did not return after cancel")
	}

	close(env.gateway.release)
	select {
	case got := <-outB:
		if got.err != nil {
			t.Fatalf("second caller err=%v", got.err)
		}
		if got.res.Status != types.PaymentStatusSuccessful {
			t.Fatalf("second caller status=%q", got.res.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("second caller did not return")
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 1 {
		t.Fatalf("enrollments=%d want 1", n)
	}
}

func TestReconcileFailedCharge(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, init, tx := initPaid(t, env, svc, 5000, flutterwave.StatusFailed)

	res, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: caller})
	if err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	if res.Status != types.PaymentStatusFailed || res.EnrollmentCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	p, _ := env.payments.GetByTxRef(bgc(), init.TxRef)
	if p == nil || p.Status != types.PaymentStatusFailed || p.FailureReason == "" {
		t.Fatalf("unexpected payment %+v", p)
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 0 {
		t.Fatalf("enrollments=%d want 0", n)
	}
}

func TestReconcileAmountMismatch(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, init, tx := initPaid(t, env, svc, 10, flutterwave.StatusSuccessful)

	res, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: caller})
	if err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	if res.Status != types.PaymentStatusFailed {
		t.Fatalf("status=%q want failed", res.Status)
	}
	p, _ := env.payments.GetByTxRef(bgc(), init.TxRef)
	if p == nil || p.FailureReason != failureAmountMismatch {
		t.Fatalf("unexpected payment %+v", p)
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 0 {
		t.Fatalf("enrollments=%d want 0", n)
	}
}

func TestReconcileMissingLinkage(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	_, caller := env.student(t)
	tx := env.gateway.settle("foreign-ref", 50, "NGN", flutterwave.StatusSuccessful, nil)

	_, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: caller})
	if !errors.Is(err, apierr.ErrMetadataIncomplete) {
		t.Fatalf("err=%v want metadata incomplete", err)
	}
	if code, _ := apierr.Classify(err); code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", code)
	}
	if n := countRows(t, env.db, &types.Enrollment{}); n != 0 {
		t.Fatalf("enrollments=%d want 0", n)
	}
}

func TestReconcileUsesLocalRecordWhenMetaMissing(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, _ := testutil.SeedCourse(t, env.db, 500000, true, 1)
	_, caller := env.student(t)
	init, err := svc.InitializePayment(bgc(), caller, course.ID)
	if err != nil {
		t.Fatalf("InitializePayment: %v", err)
	}
	tx := env.gateway.settle(init.TxRef, 5000, "NGN", flutterwave.StatusSuccessful, nil)

	res, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TxRef: init.TxRef, Caller: caller})
	if err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	if !res.EnrollmentCreated {
		t.Fatalf("expected enrollment from local record linkage: %+v", res)
	}
	if res.Payment.TransactionID == nil || *res.Payment.TransactionID != tx.IDString() {
		t.Fatalf("transaction id not stored: %+v", res.Payment)
	}
}

func TestVerifyGatewayOutageChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, init, tx := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)
	env.gateway.verifyErr = &flutterwave.HTTPError{StatusCode: http.StatusServiceUnavailable}

	_, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: caller})
	if !errors.Is(err, apierr.ErrUpstreamUnavailable) {
		t.Fatalf("err=%v want upstream unavailable", err)
	}
	p, _ := env.payments.GetByTxRef(bgc(), init.TxRef)
	if p == nil || p.Status != types.PaymentStatusInitialized {
		t.Fatalf("payment changed during outage: %+v", p)
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 0 {
		t.Fatalf("enrollments=%d want 0", n)
	}
}

func TestVerifyUnknownTransaction(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	_, caller := env.student(t)
	if _, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: "404404", Caller: caller}); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("err=%v want not found", err)
	}
	if _, err := svc.ReconcilePayment(bgc(), VerifyEvidence{Caller: caller}); !errors.Is(err, apierr.ErrInvalidArgument) {
		t.Fatalf("err=%v want invalid argument", err)
	}
}

func TestVerifyOtherUsersPayment(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	_, owner, _, tx := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)
	if _, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: owner}); err != nil {
		t.Fatalf("owner verify: %v", err)
	}
	_, stranger := env.student(t)
	if _, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: stranger}); !errors.Is(err, apierr.ErrForbidden) {
		t.Fatalf("err=%v want forbidden", err)
	}
	_, admin := env.admin(t)
	if _, err := svc.ReconcilePayment(bgc(), VerifyEvidence{TransactionID: tx.IDString(), Caller: admin}); err != nil {
		t.Fatalf("admin verify: %v", err)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, _, tx := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)
	body := webhookBody(t, flutterwave.EventChargeCompleted, tx)

	for _, sig := range []string{"", "wrong"} {
		_, err := svc.ReconcilePayment(bgc(), WebhookEvidence{RawBody: body, Signature: sig})
		if !errors.Is(err, apierr.ErrUnauthorized) {
			t.Fatalf("sig=%q err=%v want unauthorized", sig, err)
		}
	}
	if n := countRows(t, env.db, &types.PaymentWebhookEvent{}); n != 0 {
		t.Fatalf("webhook events=%d want 0", n)
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 0 {
		t.Fatalf("enrollments=%d want 0", n)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, _, tx := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)
	ev := WebhookEvidence{RawBody: webhookBody(t, flutterwave.EventChargeCompleted, tx), Signature: testWebhookSecret}

	first, err := svc.ReconcilePayment(bgc(), ev)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if !first.EnrollmentCreated || first.Payment.VerifiedVia != types.VerifiedViaWebhook {
		t.Fatalf("unexpected first result %+v", first)
	}
	second, err := svc.ReconcilePayment(bgc(), ev)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !second.AlreadyProcessed || second.EnrollmentCreated {
		t.Fatalf("unexpected second result %+v", second)
	}
	if n := countRows(t, env.db, &types.PaymentWebhookEvent{}); n != 1 {
		t.Fatalf("webhook events=%d want 1", n)
	}
	if got := testutil.ReloadCourse(t, env.db, course.ID).Students; got != 1 {
		t.Fatalf("students=%d want 1", got)
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 1 {
		t.Fatalf("enrollments=%d want 1", n)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	course, caller, _, tx := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)

	res, err := svc.ReconcilePayment(bgc(), WebhookEvidence{
		RawBody:   webhookBody(t, "transfer.completed", tx),
		Signature: testWebhookSecret,
	})
	if err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	if !res.Ignored {
		t.Fatalf("expected ignored result %+v", res)
	}
	if n := testutil.CountEnrollments(t, env.db, caller.UserID, course.ID); n != 0 {
		t.Fatalf("enrollments=%d want 0", n)
	}
}

func TestListPaymentsRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	svc := env.paymentService()
	_, caller, _, _ := initPaid(t, env, svc, 5000, flutterwave.StatusSuccessful)
	if _, err := svc.ListPayments(bgc(), caller, "", 10); !errors.Is(err, apierr.ErrForbidden) {
		t.Fatalf("err=%v want forbidden", err)
	}
	_, admin := env.admin(t)
	rows, err := svc.ListPayments(bgc(), admin, types.PaymentStatusInitialized, 10)
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d want 1", len(rows))
	}
	if _, err := svc.ListPayments(bgc(), admin, "refunded", 10); !errors.Is(err, apierr.ErrInvalidArgument) {
		t.Fatalf("err=%v want invalid argument", err)
	}
}

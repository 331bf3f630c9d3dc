package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/clients/gcp"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	"github.com/yungbote/coursehub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/flutterwave"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

const testWebhookSecret = "whsec_test"

type testEnv struct {
	db          *gorm.DB
	log         *logger.Logger
	users       repos.UserRepo
	tokens      repos.UserTokenRepo
	courses     repos.CourseRepo
	lessons     repos.LessonRepo
	enrollments repos.EnrollmentRepo
	progress    repos.LessonProgressRepo
	payments    repos.PaymentRepo
	inbox       repos.WebhookEventRepo
	gateway     *fakeGateway
	bucket      *fakeBucket
	notifier    *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return &testEnv{
		db:          db,
		log:         log,
		users:       repos.NewUserRepo(db, log),
		tokens:      repos.NewUserTokenRepo(db, log),
		courses:     repos.NewCourseRepo(db, log),
		lessons:     repos.NewLessonRepo(db, log),
		enrollments: repos.NewEnrollmentRepo(db, log),
		progress:    repos.NewLessonProgressRepo(db, log),
		payments:    repos.NewPaymentRepo(db, log),
		inbox:       repos.NewWebhookEventRepo(db, log),
		gateway:     newFakeGateway(testWebhookSecret),
		bucket:      newFakeBucket(),
		notifier:    &recordingNotifier{},
	}
}

func (e *testEnv) paymentService() PaymentService {
	return NewPaymentService(e.db, e.log, PaymentConfig{RedirectURL: "https://app.test/payments/return"},
		e.gateway, nil, e.users, e.courses, e.enrollments, e.payments, e.inbox, e.notifier)
}

func (e *testEnv) enrollmentService() EnrollmentService {
	return NewEnrollmentService(e.db, e.log, e.courses, e.enrollments, e.notifier)
}

func (e *testEnv) certificateService(t *testing.T) CertificateService {
	t.Helper()
	svc, err := NewCertificateService(e.log, e.users, e.courses, e.enrollments, e.bucket, "")
	if err != nil {
		t.Fatalf("NewCertificateService: %v", err)
	}
	return svc
}

func (e *testEnv) progressService(t *testing.T) ProgressService {
	t.Helper()
	return NewProgressService(e.db, e.log, e.courses, e.lessons, e.enrollments, e.progress, e.certificateService(t), e.notifier)
}

func (e *testEnv) courseService() CourseService {
	return NewCourseService(e.db, e.log, e.courses, e.lessons, e.enrollments, e.progress, e.bucket, "NGN")
}

func (e *testEnv) student(t *testing.T) (*types.User, Caller) {
	t.Helper()
	u := testutil.SeedUser(t, e.db, uuid.NewString()[:8]+"@example.com", types.RoleStudent)
	return u, Caller{UserID: u.ID, Role: u.Role}
}

func (e *testEnv) admin(t *testing.T) (*types.User, Caller) {
	t.Helper()
	u := testutil.SeedUser(t, e.db, "admin-"+uuid.NewString()[:8]+"@example.com", types.RoleAdmin)
	return u, Caller{UserID: u.ID, Role: u.Role}
}

func bgc() dbctx.Context { return testutil.DBC() }

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
func int64Ptr(i int64) *int64 { return &i }

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// fakeGateway is an in-memory Flutterwave. Transactions registered with
// settle become visible to the verify calls.
type fakeGateway struct {
	mu          sync.Mutex
	secret      string
	byID        map[string]*flutterwave.Transaction
	inits       []flutterwave.InitializeRequest
	nextID      int64
	initErr     error
	verifyErr   error
	verifyCalls int32

	// When set, verify calls signal entered and wait for release.
	entered chan struct{}
	release chan struct{}
}

func newFakeGateway(secret string) *fakeGateway {
	return &fakeGateway{secret: secret, byID: map[string]*flutterwave.Transaction{}, nextID: 9000}
}

func (g *fakeGateway) Initialize(_ context.Context, req flutterwave.InitializeRequest) (*flutterwave.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.inits = append(g.inits, req)
	return &flutterwave.InitializeResult{PaymentURL: "https://checkout.test/pay/" + req.TxRef, TxRef: req.TxRef}, nil
}

// settle records the gateway side of a charge and returns its transaction.
func (g *fakeGateway) settle(txRef string, amountMajor float64, currency, status string, meta map[string]string) *flutterwave.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	tx := &flutterwave.Transaction{
		ID:          g.nextID,
		TxRef:       txRef,
		FlwRef:      fmt.Sprintf("FLW-%d", g.nextID),
		Amount:      amountMajor,
		Currency:    currency,
		Status:      status,
		PaymentType: "card",
		Customer:    flutterwave.Customer{Email: "payer@example.com"},
		Meta:        meta,
	}
	g.byID[tx.IDString()] = tx
	return tx
}

func (g *fakeGateway) lastInit(t *testing.T) flutterwave.InitializeRequest {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.inits) == 0 {
		t.Fatalf("gateway was never initialized")
	}
	return g.inits[len(g.inits)-1]
}

// hold parks a verify call until release is closed or ctx ends.
func (g *fakeGateway) hold(ctx context.Context) error {
	if g.release == nil {
		return nil
	}
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, id string) (*flutterwave.Transaction, error) {
	atomic.AddInt32(&g.verifyCalls, 1)
	if err := g.hold(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	tx, ok := g.byID[id]
	if !ok {
		return nil, &flutterwave.HTTPError{StatusCode: http.StatusNotFound, Message: "No transaction was found for this id"}
	}
	cp := *tx
	return &cp, nil
}

func (g *fakeGateway) VerifyByReference(ctx context.Context, txRef string) (*flutterwave.Transaction, error) {
	atomic.AddInt32(&g.verifyCalls, 1)
	if err := g.hold(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	for _, tx := range g.byID {
		if tx.TxRef == txRef {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, &flutterwave.HTTPError{StatusCode: http.StatusNotFound, Message: "No transaction was found for this reference"}
}

func (g *fakeGateway) VerifyWebhookSignature(_ []byte, signature string) bool {
	return flutterwave.VerifySignature(g.secret, signature)
}

func webhookBody(t *testing.T, event string, tx *flutterwave.Transaction) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"id":           tx.ID,
			"tx_ref":       tx.TxRef,
			"flw_ref":      tx.FlwRef,
			"amount":       tx.Amount,
			"currency":     tx.Currency,
			"status":       tx.Status,
			"payment_type": tx.PaymentType,
			"customer":     tx.Customer,
			"meta":         map[string]string(tx.Meta),
		},
	})
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return raw
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func (b *fakeBucket) UploadFile(_ dbctx.Context, _ gcp.BucketCategory, key string, file io.Reader) error {
	if b.failPut {
		return fmt.Errorf("bucket unavailable")
	}
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = raw
	return nil
}

func (b *fakeBucket) DeleteFile(_ dbctx.Context, _ gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBucket) DownloadFile(_ context.Context, _ gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *fakeBucket) GetPublicURL(_ gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + key
}

func (b *fakeBucket) Close() error { return nil }

func (b *fakeBucket) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

type recordingNotifier struct {
	enrollments  int32
	certificates int32
}

func (n *recordingNotifier) EnrollmentConfirmed(context.Context, uuid.UUID, uuid.UUID) {
	atomic.AddInt32(&n.enrollments, 1)
}

func (n *recordingNotifier) CertificateIssued(context.Context, uuid.UUID, uuid.UUID, string) {
	atomic.AddInt32(&n.certificates, 1)
}

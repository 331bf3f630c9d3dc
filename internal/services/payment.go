package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/clients/redis"
	"github.com/yungbote/coursehub-backend/internal/data/dberr"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/observability"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/flutterwave"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

const (
	webhookProvider = "flutterwave"

	failureAmountMismatch = "amount_mismatch"

	// flightTimeout bounds a shared reconcile once no caller owns its context.
	flightTimeout = 60 * time.Second
)

// Evidence is what a reconciliation is based on: a client returning from the
// gateway (VerifyEvidence) or a signed gateway push (WebhookEvidence).
type Evidence interface {
	evidenceKind() string
}

type VerifyEvidence struct {
	TransactionID string
	TxRef         string
	Caller        Caller
}

func (VerifyEvidence) evidenceKind() string { return types.VerifiedViaVerify }

type WebhookEvidence struct {
	RawBody   []byte
	Signature string
}

func (WebhookEvidence) evidenceKind() string { return types.VerifiedViaWebhook }

type ReconcileResult struct {
	Payment    *types.Payment    `json:"payment,omitempty"`
	Enrollment *types.Enrollment `json:"enrollment,omitempty"`
	Status     string            `json:"status"`
	// AlreadyProcessed is set when an earlier reconciliation already
	// materialized this payment; nothing was changed by this call.
	AlreadyProcessed  bool `json:"already_processed"`
	EnrollmentCreated bool `json:"enrollment_created"`
	// Ignored is set for webhook events that carry no payment outcome.
	Ignored bool `json:"ignored,omitempty"`
}

type InitializeResult struct {
	PaymentURL string         `json:"payment_url"`
	TxRef      string         `json:"tx_ref"`
	Payment    *types.Payment `json:"payment"`
}

type PaymentConfig struct {
	RedirectURL     string
	DefaultCurrency string
	LockTTL         time.Duration
}

type PaymentService interface {
	InitializePayment(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (*InitializeResult, error)
	ReconcilePayment(dbc dbctx.Context, ev Evidence) (*ReconcileResult, error)
	ListPayments(dbc dbctx.Context, caller Caller, status string, limit int) ([]*types.Payment, error)
}

type paymentService struct {
	db          *gorm.DB
	log         *logger.Logger
	cfg         PaymentConfig
	gateway     flutterwave.Gateway
	locker      redis.Locker
	users       repos.UserRepo
	courses     repos.CourseRepo
	enrollments repos.EnrollmentRepo
	payments    repos.PaymentRepo
	inbox       repos.WebhookEventRepo
	notifier    Notifier
	group       singleflight.Group
	now         func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg PaymentConfig,
	gateway flutterwave.Gateway,
	locker redis.Locker,
	users repos.UserRepo,
	courses repos.CourseRepo,
	enrollments repos.EnrollmentRepo,
	payments repos.PaymentRepo,
	inbox repos.WebhookEventRepo,
	notifier Notifier,
) PaymentService {
	if locker == nil {
		locker = redis.NewNoopLocker()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "NGN"
	}
	return &paymentService{
		db:          db,
		log:         baseLog.With("service", "PaymentReconciler"),
		cfg:         cfg,
		gateway:     gateway,
		locker:      locker,
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		payments:    payments,
		inbox:       inbox,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *paymentService) InitializePayment(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (out *InitializeResult, err error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	if courseID == uuid.Nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course id required")
	}
	if s.gateway == nil {
		return nil, apierr.Wrap(apierr.ErrUpstreamUnavailable, "payment gateway not configured")
	}
	ctx, span := tracer.Start(dbc.Ctx, "payment.Initialize")
	span.SetAttributes(attribute.String("course_id", courseID.String()))
	defer func() { endSpan(span, err) }()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	course, err := s.courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil || !course.IsPublished {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", courseID)
	}
	if course.IsFree() {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course %s is free, enroll directly", courseID)
	}
	existing, err := s.enrollments.GetByUserAndCourse(dbc, caller.UserID, courseID)
	if err != nil {
		return nil, dberr.Map("load enrollment", err)
	}
	if existing != nil {
		return nil, apierr.ErrAlreadyEnrolled
	}
	users, err := s.users.GetByIDs(dbc, []uuid.UUID{caller.UserID})
	if err != nil {
		return nil, dberr.Map("load user", err)
	}
	if len(users) == 0 {
		return nil, apierr.ErrUnauthorized
	}
	u := users[0]

	currency := strings.ToUpper(firstNonEmpty(course.Currency, s.cfg.DefaultCurrency))
	txRef := newTxRef()
	res, err := s.gateway.Initialize(ctx, flutterwave.InitializeRequest{
		TxRef:       txRef,
		Amount:      flutterwave.ToMajor(course.Price),
		Currency:    currency,
		RedirectURL: s.cfg.RedirectURL,
		Customer:    flutterwave.Customer{Email: u.Email, Name: u.FullName()},
		Meta: map[string]string{
			"user_id":   caller.UserID.String(),
			"course_id": courseID.String(),
		},
		Customizations: &flutterwave.Customizations{Title: course.Title},
	})
	if err != nil {
		return nil, mapGatewayErr("initialize payment", err)
	}

	userID, cID := caller.UserID, courseID
	customer, _ := json.Marshal(flutterwave.Customer{Email: u.Email, Name: u.FullName()})
	row := &types.Payment{
		TxRef:    txRef,
		UserID:   &userID,
		CourseID: &cID,
		Amount:   course.Price,
		Currency: currency,
		Status:   types.PaymentStatusInitialized,
		Customer: datatypes.JSON(customer),
	}
	if _, err := s.payments.CreateIfAbsent(dbc, row); err != nil {
		return nil, dberr.Map("create payment", err)
	}
	s.log.Info("Payment initialized", "tx_ref", txRef, "user_id", caller.UserID, "course_id", courseID)
	return &InitializeResult{PaymentURL: res.PaymentURL, TxRef: txRef, Payment: row}, nil
}

func newTxRef() string {
	return "chub-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *paymentService) ReconcilePayment(dbc dbctx.Context, ev Evidence) (res *ReconcileResult, err error) {
	start := time.Now()
	defer func() {
		if ev != nil {
			observability.Current().ObserveReconcile(ev.evidenceKind(), reconcileOutcome(res, err), time.Since(start))
		}
	}()
	switch e := ev.(type) {
	case VerifyEvidence:
		return s.reconcileVerify(dbc, e)
	case *VerifyEvidence:
		if e == nil {
			return nil, apierr.Wrap(apierr.ErrInvalidArgument, "evidence required")
		}
		return s.reconcileVerify(dbc, *e)
	case WebhookEvidence:
		return s.reconcileWebhook(dbc, e)
	case *WebhookEvidence:
		if e == nil {
			return nil, apierr.Wrap(apierr.ErrInvalidArgument, "evidence required")
		}
		return s.reconcileWebhook(dbc, *e)
	default:
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "unsupported evidence %T", ev)
	}
}

func reconcileOutcome(res *ReconcileResult, err error) string {
	switch {
	case err != nil:
		_, code := apierr.Classify(err)
		return code
	case res == nil:
		return "none"
	case res.AlreadyProcessed:
		return "already_processed"
	case res.Ignored:
		return "ignored"
	default:
		return strings.ToLower(firstNonEmpty(res.Status, "unknown"))
	}
}

func (s *paymentService) reconcileVerify(dbc dbctx.Context, ev VerifyEvidence) (out *ReconcileResult, err error) {
	if err := requireAuthenticated(ev.Caller); err != nil {
		return nil, err
	}
	txID := strings.TrimSpace(ev.TransactionID)
	txRef := strings.TrimSpace(ev.TxRef)
	if txID == "" && txRef == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "transaction_id or tx_ref required")
	}
	if s.gateway == nil {
		return nil, apierr.Wrap(apierr.ErrUpstreamUnavailable, "payment gateway not configured")
	}

	ctx, span := tracer.Start(dbc.Ctx, "payment.ReconcileVerify")
	span.SetAttributes(attribute.String("transaction_id", txID), attribute.String("tx_ref", txRef))
	defer func() { endSpan(span, err) }()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	if done, err := s.findProcessed(dbc, txID, txRef); err != nil {
		return nil, err
	} else if done != nil {
		if err := checkOwner(ev.Caller, done.Payment.UserID); err != nil {
			return nil, err
		}
		return done, nil
	}

	key := "verify:" + firstNonEmpty(txID, "ref:"+txRef)
	res, err := s.shared(dbc, key, func(fdbc dbctx.Context) (*ReconcileResult, error) {
		var tx *flutterwave.Transaction
		var gwErr error
		if txID != "" {
			tx, gwErr = s.gateway.VerifyTransaction(fdbc.Ctx, txID)
		} else {
			tx, gwErr = s.gateway.VerifyByReference(fdbc.Ctx, txRef)
		}
		if gwErr != nil {
			return nil, mapGatewayErr("verify transaction", gwErr)
		}
		if txRef != "" && tx.TxRef != "" && tx.TxRef != txRef {
			return nil, apierr.Wrap(apierr.ErrInvalidArgument, "transaction does not match tx_ref %q", txRef)
		}
		return s.reconcileTransaction(fdbc, tx, types.VerifiedViaVerify)
	})
	if err != nil {
		return nil, err
	}
	if res.Payment != nil {
		if err := checkOwner(ev.Caller, res.Payment.UserID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *paymentService) reconcileWebhook(dbc dbctx.Context, ev WebhookEvidence) (out *ReconcileResult, err error) {
	ctx, span := tracer.Start(dbc.Ctx, "payment.ReconcileWebhook")
	defer func() { endSpan(span, err) }()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	if s.gateway == nil || !s.gateway.VerifyWebhookSignature(ev.RawBody, ev.Signature) {
		s.log.Warn("Webhook rejected, invalid signature")
		return nil, apierr.Wrap(apierr.ErrUnauthorized, "invalid webhook signature")
	}
	event, tx, err := flutterwave.ParseWebhook(ev.RawBody)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "malformed webhook body: %v", err)
	}
	span.SetAttributes(attribute.String("event", event.Event), attribute.String("tx_ref", tx.TxRef))

	eventID := firstNonEmpty(tx.IDString(), tx.TxRef)
	if eventID == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "webhook carries no transaction reference")
	}
	stored, created, err := s.inbox.Record(dbc, &types.PaymentWebhookEvent{
		Provider:        webhookProvider,
		ProviderEventID: eventID + ":" + event.Event,
		EventType:       event.Event,
		Payload:         datatypes.JSON(append([]byte(nil), ev.RawBody...)),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, dberr.Map("record webhook", err)
	}
	if !created && stored.ProcessedAt != nil {
		s.log.Info("Duplicate webhook delivery", "event_id", stored.ProviderEventID)
		done, err := s.findProcessed(dbc, tx.IDString(), tx.TxRef)
		if err != nil {
			return nil, err
		}
		if done != nil {
			return done, nil
		}
		return &ReconcileResult{Status: tx.Status, AlreadyProcessed: true}, nil
	}

	if !strings.EqualFold(event.Event, flutterwave.EventChargeCompleted) {
		s.markInbox(dbc, stored.ID, nil)
		return &ReconcileResult{Status: tx.Status, Ignored: true}, nil
	}

	res, err := s.shared(dbc, "verify:"+firstNonEmpty(tx.IDString(), "ref:"+tx.TxRef), func(fdbc dbctx.Context) (*ReconcileResult, error) {
		return s.reconcileTransaction(fdbc, tx, types.VerifiedViaWebhook)
	})
	s.markInbox(dbc, stored.ID, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// shared runs fn once per key across concurrent callers. The flight runs
// detached from any single caller's cancellation, bounded by flightTimeout;
// each caller stops waiting when its own context ends.
func (s *paymentService) shared(dbc dbctx.Context, key string, fn func(dbctx.Context) (*ReconcileResult, error)) (*ReconcileResult, error) {
	ch := s.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(dbc.Ctx), flightTimeout)
		defer cancel()
		return fn(dbctx.Context{Ctx: ctx, Tx: dbc.Tx})
	})
	select {
	case <-dbc.Ctx.Done():
		return nil, dbc.Ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*ReconcileResult), nil
	}
}

func (s *paymentService) markInbox(dbc dbctx.Context, id uuid.UUID, procErr error) {
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	if err := s.inbox.MarkProcessed(dbctx.Context{Ctx: context.WithoutCancel(dbc.Ctx)}, id, msg); err != nil {
		s.log.Warn("Failed to mark webhook event", "id", id, "error", err)
	}
}

// findProcessed returns an AlreadyProcessed result when a successful payment
// exists for the transaction id or, failing that, the tx_ref.
func (s *paymentService) findProcessed(dbc dbctx.Context, txID, txRef string) (*ReconcileResult, error) {
	var p *types.Payment
	var err error
	if txID != "" {
		if p, err = s.payments.GetByTransactionID(dbc, txID); err != nil {
			return nil, dberr.Map("load payment", err)
		}
	}
	if p == nil && txRef != "" {
		if p, err = s.payments.GetByTxRef(dbc, txRef); err != nil {
			return nil, dberr.Map("load payment", err)
		}
	}
	if p == nil || !p.IsSuccessful() {
		return nil, nil
	}
	return s.processedResult(dbc, p)
}

func (s *paymentService) processedResult(dbc dbctx.Context, p *types.Payment) (*ReconcileResult, error) {
	res := &ReconcileResult{Payment: p, Status: p.Status, AlreadyProcessed: true}
	if p.UserID != nil && p.CourseID != nil {
		e, err := s.enrollments.GetByUserAndCourse(dbc, *p.UserID, *p.CourseID)
		if err != nil {
			return nil, dberr.Map("load enrollment", err)
		}
		res.Enrollment = e
	}
	return res, nil
}

func checkOwner(caller Caller, owner *uuid.UUID) error {
	if caller.IsAdmin() || owner == nil || *owner == caller.UserID {
		return nil
	}
	return apierr.Wrap(apierr.ErrForbidden, "payment belongs to another user")
}

// reconcileTransaction applies a gateway-confirmed transaction. Ownership is
// checked by the caller-facing entry points, not here.
func (s *paymentService) reconcileTransaction(dbc dbctx.Context, tx *flutterwave.Transaction, via string) (*ReconcileResult, error) {
	if tx == nil || strings.TrimSpace(tx.TxRef) == "" {
		return nil, apierr.Wrap(apierr.ErrMetadataIncomplete, "transaction has no tx_ref")
	}
	if done, err := s.findProcessed(dbc, tx.IDString(), tx.TxRef); err != nil {
		return nil, err
	} else if done != nil {
		return done, nil
	}

	local, err := s.payments.GetByTxRef(dbc, tx.TxRef)
	if err != nil {
		return nil, dberr.Map("load payment", err)
	}
	userID, courseID := paymentLinkage(tx.Meta, local)

	if !tx.Successful() {
		reason := firstNonEmpty(strings.TrimSpace(tx.ProcessorResp), "gateway status "+strings.ToLower(tx.Status))
		return s.recordFailure(dbc, local, tx, userID, courseID, via, reason)
	}
	if userID == uuid.Nil || courseID == uuid.Nil {
		s.log.Error("Successful payment without linkage", "tx_ref", tx.TxRef, "transaction_id", tx.IDString())
		return nil, apierr.Wrap(apierr.ErrMetadataIncomplete, "tx_ref %s has no user_id/course_id", tx.TxRef)
	}
	course, err := s.courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", courseID)
	}
	if tx.AmountMinor() < course.Price || !strings.EqualFold(strings.TrimSpace(tx.Currency), course.Currency) {
		s.log.Warn("Payment amount mismatch",
			"tx_ref", tx.TxRef,
			"paid", tx.AmountMinor(),
			"paid_currency", tx.Currency,
			"price", course.Price,
			"currency", course.Currency,
		)
		return s.recordFailure(dbc, local, tx, userID, courseID, via, failureAmountMismatch)
	}

	release, lockErr := s.locker.Acquire(dbc.Ctx, fmt.Sprintf("reconcile:%s:%s", userID, courseID), s.cfg.LockTTL)
	if lockErr != nil {
		if errors.Is(lockErr, context.Canceled) || errors.Is(lockErr, context.DeadlineExceeded) {
			return nil, lockErr
		}
		// Uniqueness constraints still hold without the lock.
		s.log.Warn("Reconcile lock unavailable, continuing", "tx_ref", tx.TxRef, "error", lockErr)
	} else {
		defer release()
	}

	var res *ReconcileResult
	apply := func(inner dbctx.Context) error {
		r, err := s.applySuccess(inner, tx, via, userID, courseID)
		if err != nil {
			return err
		}
		res = r
		return nil
	}
	if dbc.Tx != nil {
		err = apply(dbc)
	} else {
		err = s.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
			return apply(dbctx.Context{Ctx: dbc.Ctx, Tx: txx})
		})
	}
	if err != nil {
		return nil, err
	}

	if res.EnrollmentCreated {
		s.log.Info("Paid enrollment created",
			"tx_ref", tx.TxRef,
			"user_id", userID,
			"course_id", courseID,
			"via", via,
		)
		observability.Current().IncEnrollmentCreated("paid")
		s.notifier.EnrollmentConfirmed(dbc.Ctx, userID, courseID)
	}
	return res, nil
}

func (s *paymentService) applySuccess(dbc dbctx.Context, tx *flutterwave.Transaction, via string, userID, courseID uuid.UUID) (*ReconcileResult, error) {
	p, err := s.ensurePayment(dbc, tx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if p.IsSuccessful() {
		return s.processedResult(dbc, p)
	}

	now := s.now()
	updates := s.gatewayFields(tx, userID, courseID, via)
	updates["verified_at"] = now
	transitioned, err := s.payments.MarkSuccessful(dbc, p.ID, updates)
	if err != nil {
		return nil, dberr.Map("mark payment successful", err)
	}
	if !transitioned {
		fresh, err := s.payments.GetByTxRef(dbc, tx.TxRef)
		if err != nil {
			return nil, dberr.Map("reload payment", err)
		}
		if fresh == nil {
			return nil, apierr.Wrap(apierr.ErrConflict, "payment %s vanished", tx.TxRef)
		}
		return s.processedResult(dbc, fresh)
	}

	paymentID := p.ID
	e, created, err := materializeEnrollment(dbc, s.enrollments, s.courses, userID, courseID, types.EnrollmentSourcePayment, &paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.payments.AttachEnrollment(dbc, p.ID, e.ID); err != nil {
		return nil, dberr.Map("attach enrollment", err)
	}
	fresh, err := s.payments.GetByTxRef(dbc, tx.TxRef)
	if err != nil {
		return nil, dberr.Map("reload payment", err)
	}
	return &ReconcileResult{
		Payment:           fresh,
		Enrollment:        e,
		Status:            types.PaymentStatusSuccessful,
		EnrollmentCreated: created,
	}, nil
}

// ensurePayment returns the local record for tx, creating it when the
// gateway reports a transaction this service never initialized.
func (s *paymentService) ensurePayment(dbc dbctx.Context, tx *flutterwave.Transaction, userID, courseID uuid.UUID) (*types.Payment, error) {
	p, err := s.payments.GetByTxRef(dbc, tx.TxRef)
	if err != nil {
		return nil, dberr.Map("load payment", err)
	}
	if p != nil {
		return p, nil
	}
	row := &types.Payment{
		TxRef:    tx.TxRef,
		UserID:   optionalUUID(userID),
		CourseID: optionalUUID(courseID),
		Amount:   tx.AmountMinor(),
		Currency: strings.ToUpper(strings.TrimSpace(tx.Currency)),
		Status:   types.PaymentStatusInitialized,
	}
	if _, err := s.payments.CreateIfAbsent(dbc, row); err != nil {
		return nil, dberr.Map("create payment", err)
	}
	p, err = s.payments.GetByTxRef(dbc, tx.TxRef)
	if err != nil {
		return nil, dberr.Map("reload payment", err)
	}
	if p == nil {
		return nil, apierr.Wrap(apierr.ErrConflict, "payment %s not visible after insert", tx.TxRef)
	}
	return p, nil
}

func (s *paymentService) recordFailure(dbc dbctx.Context, local *types.Payment, tx *flutterwave.Transaction, userID, courseID uuid.UUID, via, reason string) (*ReconcileResult, error) {
	updates := s.gatewayFields(tx, userID, courseID, via)
	updates["failure_reason"] = reason
	if local == nil {
		row := &types.Payment{
			TxRef:         tx.TxRef,
			UserID:        optionalUUID(userID),
			CourseID:      optionalUUID(courseID),
			Amount:        tx.AmountMinor(),
			Currency:      strings.ToUpper(strings.TrimSpace(tx.Currency)),
			Status:        types.PaymentStatusFailed,
			FailureReason: reason,
		}
		if _, err := s.payments.CreateIfAbsent(dbc, row); err != nil {
			return nil, dberr.Map("create failed payment", err)
		}
		local, _ = s.payments.GetByTxRef(dbc, tx.TxRef)
	}
	if local != nil {
		if err := s.payments.MarkFailed(dbc, local.ID, updates); err != nil {
			return nil, dberr.Map("mark payment failed", err)
		}
	}
	fresh, err := s.payments.GetByTxRef(dbc, tx.TxRef)
	if err != nil {
		return nil, dberr.Map("reload payment", err)
	}
	if fresh != nil && fresh.IsSuccessful() {
		return s.processedResult(dbc, fresh)
	}
	s.log.Warn("Payment not successful", "tx_ref", tx.TxRef, "reason", reason)
	return &ReconcileResult{Payment: fresh, Status: types.PaymentStatusFailed}, nil
}

func (s *paymentService) gatewayFields(tx *flutterwave.Transaction, userID, courseID uuid.UUID, via string) map[string]interface{} {
	fields := map[string]interface{}{
		"amount":         tx.AmountMinor(),
		"currency":       strings.ToUpper(strings.TrimSpace(tx.Currency)),
		"payment_method": tx.PaymentType,
		"verified_via":   via,
	}
	if id := tx.IDString(); id != "" {
		fields["transaction_id"] = id
	}
	if userID != uuid.Nil {
		fields["user_id"] = userID
	}
	if courseID != uuid.Nil {
		fields["course_id"] = courseID
	}
	if b, err := json.Marshal(tx.Customer); err == nil {
		fields["customer"] = datatypes.JSON(b)
	}
	payload := tx.Raw
	if len(payload) == 0 {
		payload, _ = json.Marshal(tx)
	}
	fields["gateway_payload"] = datatypes.JSON(payload)
	return fields
}

// paymentLinkage prefers the gateway meta and falls back to the local
// initialization record.
func paymentLinkage(meta flutterwave.Meta, local *types.Payment) (uuid.UUID, uuid.UUID) {
	userID, _ := uuid.Parse(strings.TrimSpace(meta["user_id"]))
	courseID, _ := uuid.Parse(strings.TrimSpace(meta["course_id"]))
	if local != nil {
		if userID == uuid.Nil && local.UserID != nil {
			userID = *local.UserID
		}
		if courseID == uuid.Nil && local.CourseID != nil {
			courseID = *local.CourseID
		}
	}
	return userID, courseID
}

func optionalUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func mapGatewayErr(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var he *flutterwave.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == http.StatusNotFound:
			return apierr.Wrap(apierr.ErrNotFound, "%s: %v", op, err)
		case he.StatusCode >= 400 && he.StatusCode < 500 && he.StatusCode != http.StatusRequestTimeout && he.StatusCode != http.StatusTooManyRequests:
			return apierr.Wrap(apierr.ErrInvalidArgument, "%s: %v", op, err)
		}
	}
	return apierr.Wrap(apierr.ErrUpstreamUnavailable, "%s: %v", op, err)
}

func (s *paymentService) ListPayments(dbc dbctx.Context, caller Caller, status string, limit int) ([]*types.Payment, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", types.PaymentStatusInitialized, types.PaymentStatusSuccessful, types.PaymentStatusFailed:
	default:
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "unknown payment status %q", status)
	}
	rows, err := s.payments.ListRecent(dbc, status, limit)
	if err != nil {
		return nil, dberr.Map("list payments", err)
	}
	return rows, nil
}

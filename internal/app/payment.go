package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// NotificationOutcome says what became of a payment notification.
type NotificationOutcome string

const (
	// OutcomeQueued means the tenant's activation was durably scheduled.
	OutcomeQueued NotificationOutcome = "queued"
	// OutcomeIgnored means the notification was unverifiable, malformed,
	// unknown, or not a settled payment. It is acknowledged anyway.
	OutcomeIgnored NotificationOutcome = "ignored"
)

// PaymentService handles payment sessions and provider notifications.
type PaymentService struct {
	gateway domain.PaymentGateway
	queue   domain.ActivationQueue
	repo    domain.TenantRepository
	fee     int64
}

// NewPaymentService creates a payment service charging fee per subscription.
func NewPaymentService(gateway domain.PaymentGateway, queue domain.ActivationQueue, repo domain.TenantRepository, fee int64) *PaymentService {
	return &PaymentService{gateway: gateway, queue: queue, repo: repo, fee: fee}
}

// HandleNotification verifies a raw notification and, for a settled payment,
// schedules the activation of the tenant named by its order ID. Only failures
// the provider should retry are returned as errors.
func (s *PaymentService) HandleNotification(ctx context.Context, payload []byte) (NotificationOutcome, error) {
	n, err := s.gateway.Verify(ctx, payload)
	if errors.Is(err, domain.ErrWebhookVerification) || errors.Is(err, domain.ErrMalformedNotification) {
		slog.WarnContext(ctx, "ignoring payment notification", "error", err)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("verifying payment notification: %w", err)
	}

	if !n.Settled() {
		slog.InfoContext(ctx, "payment not settled",
			"order_id", n.OrderID,
			"transaction_status", n.TransactionStatus,
			"fraud_status", n.FraudStatus,
		)
		return OutcomeIgnored, nil
	}

	if _, err := s.repo.GetByID(ctx, n.OrderID); errors.Is(err, domain.ErrTenantNotFound) {
		slog.WarnContext(ctx, "payment for unknown tenant", "order_id", n.OrderID, "transaction_id", n.TransactionID)
		return OutcomeIgnored, nil
	} else if err != nil {
		return "", fmt.Errorf("looking up tenant %s: %w", n.OrderID, err)
	}

	if err := s.queue.EnqueueActivation(ctx, n.OrderID, n.TransactionID); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "activation queued", "tenant_id", n.OrderID, "transaction_id", n.TransactionID)
	return OutcomeQueued, nil
}

// CreateSession opens a checkout for a PENDING tenant's subscription.
func (s *PaymentService) CreateSession(ctx context.Context, tenantID string) (domain.PaymentSession, error) {
	tenant, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if tenant.Status != domain.StatusPending {
		return domain.PaymentSession{}, &domain.TransitionError{Event: domain.EventActivate, Current: tenant.Status}
	}

	session, err := s.gateway.CreateSession(ctx, tenant, s.fee)
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("creating payment session for tenant %s: %w", tenant.ID, err)
	}
	return session, nil
}

// DirectActivation is an ActivationQueue that activates in the calling
// goroutine. It suits tools and tests that run without a job queue.
type DirectActivation struct {
	Tenants *TenantService
}

func (d DirectActivation) EnqueueActivation(ctx context.Context, tenantID, _ string) error {
	_, err := d.Tenants.Activate(ctx, tenantID)
	return err
}

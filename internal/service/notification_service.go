package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/pkg/jobs"
)

// Notification kinds dispatched by reconciliation events.
const (
	NotifyPaymentDue = "payment_due"
	NotifyDebtRaised = "debt_raised"
)

// Notification is the payload handed to the dispatch queue.
type Notification struct {
	Kind         string          `json:"kind"`
	StudentID    string          `json:"student_id"`
	EnrollmentID string          `json:"enrollment_id"`
	ClassName    string          `json:"class_name"`
	Amount       decimal.Decimal `json:"amount"`
}

// NotificationService dispatches guardian notifications fire-and-forget over
// an in-memory queue. Delivery failure never fails the reconciliation write
// that raised the event.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the service and its queue.
func NewNotificationService(cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, cfg)
	return s
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues a notification. Errors are logged and swallowed; the
// caller's transaction already committed.
func (s *NotificationService) Dispatch(ctx context.Context, n Notification) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Kind:    n.Kind,
		Payload: n,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("kind", n.Kind),
			zap.String("student_id", n.StudentID),
			zap.Error(err))
	}
}

// deliver is the queue handler. The SMS gateway integration hangs off this
// point; until it lands, deliveries are logged.
func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}
	s.logger.Info("notification dispatched",
		zap.String("kind", n.Kind),
		zap.String("student_id", n.StudentID),
		zap.String("enrollment_id", n.EnrollmentID),
		zap.String("class_name", n.ClassName),
		zap.String("amount", n.Amount.String()))
	return nil
}

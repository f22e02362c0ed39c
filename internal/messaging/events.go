package messaging

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"waste-portal/internal/model"
	"waste-portal/internal/repository"
)

const (
	RoutingKeyScheduleCreated = "schedule.created"
	RoutingKeyScheduleUpdated = "schedule.updated"
	RoutingKeyPaymentCreated  = "payment.created"
	RoutingKeyPaymentUpdated  = "payment.updated"
	RoutingKeyPaymentDeleted  = "payment.deleted"
)

type ScheduleEvent struct {
	ScheduleID  string `json:"schedule_id,omitempty"`
	UserID      string `json:"user_id"`
	ResidenceID string `json:"residence_id"`
	Area        string `json:"area"`
	Timeslot    string `json:"timeslot"`
	CDate       string `json:"cdate"`
	WasteType   string `json:"waste_type"`
	Timestamp   int64  `json:"timestamp"`
}

type PaymentEvent struct {
	PaymentID string          `json:"payment_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	TotalBill decimal.Decimal `json:"total_bill"`
	Status    string          `json:"status,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewScheduleEvent(s model.Schedule) ScheduleEvent {
	return ScheduleEvent{
		ScheduleID:  s.ID,
		UserID:      s.UserID,
		ResidenceID: s.ResidenceID,
		Area:        s.Area,
		Timeslot:    s.Timeslot,
		CDate:       s.CDate,
		WasteType:   s.Type,
		Timestamp:   time.Now().Unix(),
	}
}

func NewPaymentEvent(p model.Payment) PaymentEvent {
	return PaymentEvent{
		PaymentID: p.ID,
		UserID:    p.UserID,
		TotalBill: p.TotalBill,
		Status:    p.Status,
		Timestamp: time.Now().Unix(),
	}
}

// Recorder records a domain event after a successful backend write.
type Recorder interface {
	Record(ctx context.Context, routingKey string, event any) error
}

// OutboxRecorder stores events in the outbox for the worker to publish.
type OutboxRecorder struct {
	outbox *repository.OutboxRepository
}

func NewOutboxRecorder(outbox *repository.OutboxRepository) *OutboxRecorder {
	return &OutboxRecorder{outbox: outbox}
}

func (r *OutboxRecorder) Record(ctx context.Context, routingKey string, event any) error {
	return r.outbox.Create(ctx, routingKey, event)
}

// NopRecorder drops events; used when the broker is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, string, any) error { return nil }

package service

import (
	"context"
	"encoding/json"
	"time"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	apperrors "github.com/allisson/casevault/internal/errors"
	outboxDomain "github.com/allisson/casevault/internal/outbox/domain"
)

// OutboxWriter stores outbox events in the transaction carried by ctx.
type OutboxWriter interface {
	Create(ctx context.Context, event *outboxDomain.OutboxEvent) error
}

type outboxNotifier struct {
	outbox OutboxWriter
}

// NewOutboxNotifier creates a Notifier that enqueues tamper alerts on the
// transactional outbox. Delivery to administrators and tenant webhooks is done
// by the outbox processor, so the alert commits or rolls back together with
// the ledger flag.
func NewOutboxNotifier(outbox OutboxWriter) Notifier {
	return &outboxNotifier{outbox: outbox}
}

func (n *outboxNotifier) NotifyTamper(ctx context.Context, alert *auditDomain.TamperAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal tamper alert")
	}

	event := outboxDomain.NewOutboxEvent(outboxDomain.EventTypeTamperAlert, payload, time.Now().UTC())
	if err := n.outbox.Create(ctx, event); err != nil {
		return apperrors.Wrap(err, "failed to enqueue tamper alert")
	}
	return nil
}

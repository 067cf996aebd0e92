// Package usecase implements the transactional outbox processor that delivers
// tamper alerts to administrators and tenant webhooks.
//
// # Transactional Outbox
//
// A tamper response must not be lost even when the alert endpoint is down,
// and it must not be announced for a response that rolled back. The ledger
// therefore writes the alert as an OutboxEvent in the same transaction that
// flags the ledger; this worker delivers it afterwards.
//
// # Delivery
//
// Each tick claims up to BatchSize pending events with row locks and hands
// every event to the EventProcessor registered for its type. Delivery is
// at-least-once:
//   - success marks the event processed
//   - failure records the error and increments Retries; the event stays
//     pending until MaxRetries is reached, then it is marked failed
//   - an event type without a processor is parked as failed immediately
//
// # Usage Example
//
//	worker := usecase.NewOutboxUseCase(usecase.Config{
//	    Interval:   5 * time.Second,
//	    BatchSize:  10,
//	    MaxRetries: 5,
//	}, txManager, outboxRepo, map[string]usecase.EventProcessor{
//	    domain.EventTypeTamperAlert: tamperProcessor,
//	}, logger)
//
//	go func() { _ = worker.Start(ctx) }()
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/casevault/internal/database"
	"github.com/allisson/casevault/internal/outbox/domain"
)

// Config holds the polling cadence and retry ceiling of the outbox worker.
type Config struct {
	// Interval between two batches.
	Interval time.Duration
	// BatchSize bounds how many events one batch claims.
	BatchSize int
	// MaxRetries is the number of failed attempts after which an event is
	// marked failed.
	MaxRetries int
}

// OutboxEventRepository persists outbox events. GetPendingEvents must lock
// the rows it returns for the rest of the transaction carried by ctx.
type OutboxEventRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	Update(ctx context.Context, event *domain.OutboxEvent) error
}

// EventProcessor delivers one event type. A returned error counts as a failed
// attempt and the event is retried on a later tick.
type EventProcessor interface {
	Process(ctx context.Context, event *domain.OutboxEvent) error
}

// UseCase is the outbox worker run by the server.
type UseCase interface {
	// Start polls until ctx is done and returns the context error.
	Start(ctx context.Context) error
	// ProcessEvents runs one batch.
	ProcessEvents(ctx context.Context) error
}

// OutboxUseCase drains pending events and routes each one to the processor
// registered for its type.
type OutboxUseCase struct {
	config     Config
	txManager  database.TxManager
	outboxRepo OutboxEventRepository
	processors map[string]EventProcessor
	logger     *slog.Logger
	now        func() time.Time
}

// NewOutboxUseCase creates an OutboxUseCase. Events whose type has no entry in
// processors are parked as failed on first sight.
func NewOutboxUseCase(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxEventRepository,
	processors map[string]EventProcessor,
	logger *slog.Logger,
) *OutboxUseCase {
	return &OutboxUseCase{
		config:     config,
		txManager:  txManager,
		outboxRepo: outboxRepo,
		processors: processors,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start runs ProcessEvents on every tick until ctx is done.
func (uc *OutboxUseCase) Start(ctx context.Context) error {
	uc.logger.Info("outbox worker started",
		slog.Duration("interval", uc.config.Interval),
		slog.Int("batch_size", uc.config.BatchSize),
		slog.Int("event_types", len(uc.processors)),
	)

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("outbox worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessEvents(ctx); err != nil {
				uc.logger.Error("outbox batch failed", slog.Any("error", err))
			}
		}
	}
}

// ProcessEvents claims one batch of pending events inside a transaction and
// records the outcome of each delivery attempt.
//
// Delivery errors never abort the batch; they are stored on the event. Only
// storage errors roll the batch back, leaving every event pending for the
// next tick.
//
// Parameters:
//   - ctx: Context for cancellation; also passed to the processors
//
// Returns:
//   - nil when the batch committed, including when deliveries failed
//   - An error from claiming or updating events
func (uc *OutboxUseCase) ProcessEvents(ctx context.Context) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.outboxRepo.GetPendingEvents(ctx, uc.config.BatchSize)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			uc.logger.Debug("outbox batch claimed", slog.Int("count", len(events)))
		}

		for _, event := range events {
			uc.deliver(ctx, event)
			if err := uc.outboxRepo.Update(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// deliver runs the processor of event and applies the outcome to event.
func (uc *OutboxUseCase) deliver(ctx context.Context, event *domain.OutboxEvent) {
	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
	}

	processor, ok := uc.processors[event.EventType]
	if !ok {
		uc.logger.Warn("no processor for outbox event, parking it", attrs...)
		event.Abandon(fmt.Errorf("no processor registered for event type %q", event.EventType), uc.now())
		return
	}

	if err := processor.Process(ctx, event); err != nil {
		exhausted := event.RecordFailure(err, uc.config.MaxRetries, uc.now())
		attrs = append(attrs,
			slog.Int("retries", event.Retries),
			slog.Bool("exhausted", exhausted),
			slog.Any("error", err),
		)
		uc.logger.Error("outbox delivery failed", attrs...)
		return
	}

	event.MarkDelivered(uc.now())
}

package app

import (
	"database/sql"
	"fmt"
	"time"

	outboxDomain "github.com/allisson/casevault/internal/outbox/domain"
	outboxHTTP "github.com/allisson/casevault/internal/outbox/http"
	outboxRepository "github.com/allisson/casevault/internal/outbox/repository"
	outboxService "github.com/allisson/casevault/internal/outbox/service"
	outboxUseCase "github.com/allisson/casevault/internal/outbox/usecase"
)

// webhookTimeout bounds a single delivery attempt.
const webhookTimeout = 10 * time.Second

// TenantWebhookRepository stores the tamper alert endpoint of each tenant.
type TenantWebhookRepository interface {
	outboxUseCase.TenantWebhookRepository
	outboxHTTP.TenantWebhookRepository
}

// outboxComponents holds the outbox store, the tenant webhook store and the
// processor delivering tamper alerts.
type outboxComponents struct {
	outboxRepo     lazy[outboxUseCase.OutboxEventRepository]
	webhookRepo    lazy[TenantWebhookRepository]
	outboxUseCase  lazy[outboxUseCase.UseCase]
	webhookHandler lazy[*outboxHTTP.WebhookHandler]
}

// OutboxRepository returns the outbox event store for the configured driver.
func (c *Container) OutboxRepository() (outboxUseCase.OutboxEventRepository, error) {
	return c.outboxRepo.get(func() (outboxUseCase.OutboxEventRepository, error) {
		return sqlRepository(c, "outbox repository",
			func() outboxUseCase.OutboxEventRepository {
				return outboxRepository.NewMemoryOutboxEventRepository()
			},
			func(db *sql.DB) outboxUseCase.OutboxEventRepository {
				return outboxRepository.NewPostgreSQLOutboxEventRepository(db)
			},
			func(db *sql.DB) outboxUseCase.OutboxEventRepository {
				return outboxRepository.NewMySQLOutboxEventRepository(db)
			},
		)
	})
}

// TenantWebhookRepository returns the tenant webhook store for the configured driver.
func (c *Container) TenantWebhookRepository() (TenantWebhookRepository, error) {
	return c.webhookRepo.get(func() (TenantWebhookRepository, error) {
		return sqlRepository(c, "tenant webhook repository",
			func() TenantWebhookRepository { return outboxRepository.NewMemoryTenantWebhookRepository() },
			func(db *sql.DB) TenantWebhookRepository {
				return outboxRepository.NewPostgreSQLTenantWebhookRepository(db)
			},
			func(db *sql.DB) TenantWebhookRepository {
				return outboxRepository.NewMySQLTenantWebhookRepository(db)
			},
		)
	})
}

// OutboxUseCase returns the outbox processor delivering tamper alerts.
func (c *Container) OutboxUseCase() (outboxUseCase.UseCase, error) {
	return c.outboxUseCase.get(c.initOutboxUseCase)
}

// WebhookHandler returns the HTTP handler managing tenant webhooks.
func (c *Container) WebhookHandler() (*outboxHTTP.WebhookHandler, error) {
	return c.webhookHandler.get(func() (*outboxHTTP.WebhookHandler, error) {
		webhooks, err := c.TenantWebhookRepository()
		if err != nil {
			return nil, err
		}
		return outboxHTTP.NewWebhookHandler(webhooks, c.Logger()), nil
	})
}

// initOutboxUseCase assembles the outbox processor with one registered event
// type: tamper alerts, delivered to the tenant webhook and the admin webhook.
// A missing ADMIN_ALERT_WEBHOOK_URL is logged and tolerated.
func (c *Container) initOutboxUseCase() (outboxUseCase.UseCase, error) {
	logger := c.Logger()

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, err
	}
	webhooks, err := c.TenantWebhookRepository()
	if err != nil {
		return nil, err
	}

	if c.config.AdminAlertWebhookURL == "" {
		logger.Warn("ADMIN_ALERT_WEBHOOK_URL not set, tamper alerts reach tenant webhooks only")
	}

	sender := outboxService.NewWebhookSender(outboxService.WebhookSenderConfig{
		Timeout:  webhookTimeout,
		RetryMax: 3,
	}, logger)
	processor := outboxUseCase.NewTamperAlertProcessor(
		outboxUseCase.AdminAlertConfig{
			URL:    c.config.AdminAlertWebhookURL,
			Secret: []byte(c.config.WebhookSigningSecret),
		},
		webhooks,
		sender,
		logger,
	)

	return outboxUseCase.NewOutboxUseCase(
		outboxUseCase.Config{
			Interval:   c.config.OutboxInterval,
			BatchSize:  c.config.OutboxBatchSize,
			MaxRetries: c.config.OutboxMaxRetries,
		},
		txManager,
		outboxRepo,
		map[string]outboxUseCase.EventProcessor{
			outboxDomain.EventTypeTamperAlert: processor,
		},
		logger,
	), nil
}

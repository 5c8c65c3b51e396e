package app

import (
	"fmt"

	messagingDomain "github.com/allisson/schoolops/internal/messaging/domain"
	messagingUsecase "github.com/allisson/schoolops/internal/messaging/usecase"
	outboxRepository "github.com/allisson/schoolops/internal/outbox/repository"
	outboxUsecase "github.com/allisson/schoolops/internal/outbox/usecase"
	playbookDomain "github.com/allisson/schoolops/internal/playbook/domain"
	playbookRepository "github.com/allisson/schoolops/internal/playbook/repository"
	playbookUsecase "github.com/allisson/schoolops/internal/playbook/usecase"
	tierreviewDomain "github.com/allisson/schoolops/internal/tierreview/domain"
	tierreviewRepository "github.com/allisson/schoolops/internal/tierreview/repository"
	tierreviewUsecase "github.com/allisson/schoolops/internal/tierreview/usecase"
)

// EnqueueUseCase returns the outbox enqueue use case instance.
func (c *Container) EnqueueUseCase() (*outboxUsecase.EnqueueUseCase, error) {
	var err error
	c.enqueueUseCaseInit.Do(func() {
		c.enqueueUseCase, err = c.initEnqueueUseCase()
		if err != nil {
			c.initErrors["enqueueUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["enqueueUseCase"]; exists {
		return nil, storedErr
	}
	return c.enqueueUseCase, nil
}

// DispatcherUseCase returns the outbox dispatcher with all handlers registered.
func (c *Container) DispatcherUseCase() (*outboxUsecase.DispatcherUseCase, error) {
	var err error
	c.dispatcherUseCaseInit.Do(func() {
		c.dispatcherUseCase, err = c.initDispatcherUseCase()
		if err != nil {
			c.initErrors["dispatcherUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dispatcherUseCase"]; exists {
		return nil, storedErr
	}
	return c.dispatcherUseCase, nil
}

// ReplayUseCase returns the dead letter replay use case instance.
func (c *Container) ReplayUseCase() (*outboxUsecase.ReplayUseCase, error) {
	var err error
	c.replayUseCaseInit.Do(func() {
		c.replayUseCase, err = c.initReplayUseCase()
		if err != nil {
			c.initErrors["replayUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["replayUseCase"]; exists {
		return nil, storedErr
	}
	return c.replayUseCase, nil
}

// initEnqueueUseCase creates the enqueue use case with its dependencies.
func (c *Container) initEnqueueUseCase() (*outboxUsecase.EnqueueUseCase, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for enqueue use case: %w", err)
	}

	itemRepo := outboxRepository.NewPostgreSQLOutboxItemRepository(db)
	return outboxUsecase.NewEnqueueUseCase(itemRepo, c.Clock(), c.Logger()), nil
}

// initDispatcherUseCase creates the dispatcher and registers every item type
// handler the platform knows about.
func (c *Container) initDispatcherUseCase() (*outboxUsecase.DispatcherUseCase, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for dispatcher use case: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for dispatcher use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for dispatcher use case: %w", err)
	}

	dispatcher := outboxUsecase.NewDispatcherUseCase(
		outboxRepository.NewPostgreSQLOutboxItemRepository(db),
		outboxRepository.NewPostgreSQLDeadLetterRepository(db),
		txManager,
		outboxUsecase.DispatcherConfig{
			PollInterval: c.config.DispatchPollInterval,
			BatchSize:    c.config.DispatchBatchSize,
			MaxAttempts:  c.config.DispatchMaxAttempts,
			RatePerSec:   c.config.DispatchRatePerSec,
			RateBurst:    c.config.DispatchRateBurst,
		},
		c.Clock(),
		c.Logger(),
		businessMetrics,
	)

	// message.send delivery
	sender := messagingUsecase.NewLogSender(c.Logger())
	dispatcher.RegisterHandler(messagingDomain.ItemTypeSendMessage, messagingUsecase.NewSendMessageHandler(sender))

	// case.escalate from playbook escalations
	escalationRepo := playbookRepository.NewPostgreSQLCaseEscalationRepository(db)
	dispatcher.RegisterHandler(
		playbookDomain.ItemTypeEscalateCase,
		playbookUsecase.NewEscalateCaseHandler(escalationRepo, c.Clock(), c.Logger()),
	)

	// tier.review from the weekly attendance review
	tierRepo := tierreviewRepository.NewPostgreSQLTierRepository(db)
	dispatcher.RegisterHandler(
		tierreviewDomain.ItemTypeTierReview,
		tierreviewUsecase.NewTierReviewHandler(tierRepo, c.Clock()),
	)

	return dispatcher, nil
}

// initReplayUseCase creates the replay use case with its dependencies.
func (c *Container) initReplayUseCase() (*outboxUsecase.ReplayUseCase, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for replay use case: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for replay use case: %w", err)
	}

	return outboxUsecase.NewReplayUseCase(
		outboxRepository.NewPostgreSQLOutboxItemRepository(db),
		outboxRepository.NewPostgreSQLDeadLetterRepository(db),
		txManager,
		c.Clock(),
		c.Logger(),
	), nil
}

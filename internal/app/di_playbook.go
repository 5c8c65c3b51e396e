package app

import (
	"fmt"

	playbookRepository "github.com/allisson/schoolops/internal/playbook/repository"
	playbookUsecase "github.com/allisson/schoolops/internal/playbook/usecase"
)

// OrchestratorUseCase returns the playbook orchestrator instance.
func (c *Container) OrchestratorUseCase() (*playbookUsecase.OrchestratorUseCase, error) {
	var err error
	c.orchestratorUseCaseInit.Do(func() {
		c.orchestratorUseCase, err = c.initOrchestratorUseCase()
		if err != nil {
			c.initErrors["orchestratorUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["orchestratorUseCase"]; exists {
		return nil, storedErr
	}
	return c.orchestratorUseCase, nil
}

// initOrchestratorUseCase creates the orchestrator with all its dependencies.
func (c *Container) initOrchestratorUseCase() (*playbookUsecase.OrchestratorUseCase, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for orchestrator use case: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for orchestrator use case: %w", err)
	}

	enqueueUseCase, err := c.EnqueueUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get enqueue use case for orchestrator use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for orchestrator use case: %w", err)
	}

	return playbookUsecase.NewOrchestratorUseCase(
		playbookRepository.NewPostgreSQLDefinitionRepository(db),
		playbookRepository.NewPostgreSQLRunRepository(db),
		playbookRepository.NewPostgreSQLExecutionLogRepository(db),
		playbookRepository.NewPostgreSQLTelemetryRepository(db),
		playbookRepository.NewPostgreSQLTriggerEventRepository(db),
		playbookRepository.NewPostgreSQLStudentStateRepository(db),
		enqueueUseCase,
		txManager,
		playbookUsecase.NewEvaluator(),
		playbookUsecase.OrchestratorConfig{
			RunBatchSize:      c.config.OrchestrationRunBatchSize,
			TriggerWindowDays: c.config.TriggerWindowDays,
		},
		c.Clock(),
		c.Logger(),
		businessMetrics,
	), nil
}

package app

import (
	"fmt"
	"time"

	campaignRepository "github.com/allisson/schoolops/internal/campaign/repository"
	campaignUsecase "github.com/allisson/schoolops/internal/campaign/usecase"
	lockRepository "github.com/allisson/schoolops/internal/lock/repository"
	lockUsecase "github.com/allisson/schoolops/internal/lock/usecase"
	schedulerUsecase "github.com/allisson/schoolops/internal/scheduler/usecase"
	tierreviewRepository "github.com/allisson/schoolops/internal/tierreview/repository"
	tierreviewUsecase "github.com/allisson/schoolops/internal/tierreview/usecase"
)

// LockUseCase returns the lease lock use case shared by every periodic runner.
func (c *Container) LockUseCase() (*lockUsecase.LockUseCase, error) {
	var err error
	c.lockUseCaseInit.Do(func() {
		c.lockUseCase, err = c.initLockUseCase()
		if err != nil {
			c.initErrors["lockUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["lockUseCase"]; exists {
		return nil, storedErr
	}
	return c.lockUseCase, nil
}

// CampaignRunnerUseCase returns the campaign runner job instance.
func (c *Container) CampaignRunnerUseCase() (*campaignUsecase.CampaignRunnerUseCase, error) {
	var err error
	c.campaignRunnerUseCaseInit.Do(func() {
		c.campaignRunnerUseCase, err = c.initCampaignRunnerUseCase()
		if err != nil {
			c.initErrors["campaignRunnerUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["campaignRunnerUseCase"]; exists {
		return nil, storedErr
	}
	return c.campaignRunnerUseCase, nil
}

// TierReviewUseCase returns the tier review job instance.
func (c *Container) TierReviewUseCase() (*tierreviewUsecase.TierReviewUseCase, error) {
	var err error
	c.tierReviewUseCaseInit.Do(func() {
		c.tierReviewUseCase, err = c.initTierReviewUseCase()
		if err != nil {
			c.initErrors["tierReviewUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tierReviewUseCase"]; exists {
		return nil, storedErr
	}
	return c.tierReviewUseCase, nil
}

// OrchestratorRunner returns the lease-guarded runner for the playbook orchestrator.
func (c *Container) OrchestratorRunner() (*schedulerUsecase.Runner, error) {
	var err error
	c.orchestratorRunnerInit.Do(func() {
		c.orchestratorRunner, err = c.initOrchestratorRunner()
		if err != nil {
			c.initErrors["orchestratorRunner"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["orchestratorRunner"]; exists {
		return nil, storedErr
	}
	return c.orchestratorRunner, nil
}

// CampaignRunner returns the lease-guarded runner for the campaign job.
func (c *Container) CampaignRunner() (*schedulerUsecase.Runner, error) {
	var err error
	c.campaignRunnerInit.Do(func() {
		c.campaignRunner, err = c.initCampaignRunner()
		if err != nil {
			c.initErrors["campaignRunner"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["campaignRunner"]; exists {
		return nil, storedErr
	}
	return c.campaignRunner, nil
}

// TierReviewRunner returns the lease-guarded runner for the tier review job.
func (c *Container) TierReviewRunner() (*schedulerUsecase.Runner, error) {
	var err error
	c.tierReviewRunnerInit.Do(func() {
		c.tierReviewRunner, err = c.initTierReviewRunner()
		if err != nil {
			c.initErrors["tierReviewRunner"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tierReviewRunner"]; exists {
		return nil, storedErr
	}
	return c.tierReviewRunner, nil
}

// initLockUseCase creates the lock use case with its dependencies.
func (c *Container) initLockUseCase() (*lockUsecase.LockUseCase, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for lock use case: %w", err)
	}

	leaseRepo := lockRepository.NewPostgreSQLLeaseRepository(db)
	return lockUsecase.NewLockUseCase(leaseRepo, c.config.LockTTL, c.Clock(), c.Logger()), nil
}

// initCampaignRunnerUseCase creates the campaign runner job with its dependencies.
func (c *Container) initCampaignRunnerUseCase() (*campaignUsecase.CampaignRunnerUseCase, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for campaign runner use case: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for campaign runner use case: %w", err)
	}

	enqueueUseCase, err := c.EnqueueUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get enqueue use case for campaign runner use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for campaign runner use case: %w", err)
	}

	return campaignUsecase.NewCampaignRunnerUseCase(
		campaignRepository.NewPostgreSQLCampaignRepository(db),
		enqueueUseCase,
		txManager,
		campaignUsecase.CampaignRunnerConfig{},
		c.Clock(),
		c.Logger(),
		businessMetrics,
	), nil
}

// initTierReviewUseCase creates the tier review job with its dependencies.
func (c *Container) initTierReviewUseCase() (*tierreviewUsecase.TierReviewUseCase, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tier review use case: %w", err)
	}

	enqueueUseCase, err := c.EnqueueUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get enqueue use case for tier review use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for tier review use case: %w", err)
	}

	return tierreviewUsecase.NewTierReviewUseCase(
		tierreviewRepository.NewPostgreSQLTierRepository(db),
		enqueueUseCase,
		c.Clock(),
		c.Logger(),
		businessMetrics,
	), nil
}

// initOrchestratorRunner creates the orchestrator runner with its dependencies.
func (c *Container) initOrchestratorRunner() (*schedulerUsecase.Runner, error) {
	orchestrator, err := c.OrchestratorUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get orchestrator use case for runner: %w", err)
	}
	return c.newRunner(orchestrator, c.config.OrchestrationPollInterval)
}

// initCampaignRunner creates the campaign runner with its dependencies.
func (c *Container) initCampaignRunner() (*schedulerUsecase.Runner, error) {
	campaignJob, err := c.CampaignRunnerUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign runner use case for runner: %w", err)
	}
	return c.newRunner(campaignJob, c.config.CampaignRunnerInterval)
}

// initTierReviewRunner creates the tier review runner with its dependencies.
func (c *Container) initTierReviewRunner() (*schedulerUsecase.Runner, error) {
	tierReviewJob, err := c.TierReviewUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get tier review use case for runner: %w", err)
	}
	return c.newRunner(tierReviewJob, c.config.TierReviewInterval)
}

// newRunner wires a job to the shared lock and interval plumbing.
func (c *Container) newRunner(job schedulerUsecase.Job, interval time.Duration) (*schedulerUsecase.Runner, error) {
	locker, err := c.LockUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get lock use case for runner: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for runner: %w", err)
	}

	return schedulerUsecase.NewRunner(job, locker, interval, c.Clock(), c.Logger(), businessMetrics), nil
}

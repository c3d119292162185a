package api

import (
	"github.com/JaimeStill/vigil/internal/batch"
	"github.com/JaimeStill/vigil/internal/classify"
	"github.com/JaimeStill/vigil/internal/config"
	"github.com/JaimeStill/vigil/internal/orchestrator"
	"github.com/JaimeStill/vigil/internal/reconciler"
	"github.com/JaimeStill/vigil/internal/reports"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/review"
	"github.com/JaimeStill/vigil/internal/tasks"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Tasks        tasks.System
	Results      results.System
	Classify     classify.System
	Review       review.System
	Batch        batch.System
	Reconciler   reconciler.System
	Orchestrator orchestrator.System
	Reports      reports.System
}

// NewDomain creates all domain systems from the API runtime and binds the
// batch engine's completion events to the reconciler.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	tasksSystem := tasks.New(db, runtime.Logger, runtime.Pagination)
	resultsSystem := results.New(db, runtime.Logger, cfg.Results.PageSize)

	classifySystem := classify.New(
		runtime.AWS.Rekognition,
		runtime.Storage,
		resultsSystem,
		cfg.Moderation.MinConfidence,
		runtime.Logger,
	)

	pool := review.NewWorkerPool(
		runtime.AWS.SageMaker,
		review.NewLedger(db),
		review.PoolSettings{
			Name:        cfg.Review.WorkteamName,
			FallbackArn: cfg.Review.FallbackWorkteamArn,
			Cognito: review.Cognito{
				UserPool:  cfg.Review.Cognito.UserPool,
				UserGroup: cfg.Review.Cognito.UserGroup,
				ClientID:  cfg.Review.Cognito.ClientID,
			},
			MaxPages: cfg.Review.MaxPages,
		},
		runtime.Logger,
	)

	reviewSystem := review.New(
		runtime.AWS.SageMaker,
		runtime.AWS.A2I,
		pool,
		review.Settings{
			FlowNamePrefix:  cfg.Review.FlowPrefix,
			HumanTaskUIName: cfg.Review.HumanTaskUI,
			RoleArn:         cfg.Review.RoleArn,
			Policy: review.ActivationPolicy{
				Lower: cfg.Moderation.ReviewLower,
				Upper: cfg.Moderation.ReviewUpper,
			},
			MaxPages: cfg.Review.MaxPages,
		},
		runtime.Logger,
	)

	batchSystem := batch.New(
		runtime.Lifecycle,
		classifySystem,
		batch.Settings{
			Concurrency:   cfg.Moderation.Concurrency,
			RatePerSecond: cfg.Moderation.RatePerSecond,
			MaxAttempts:   cfg.Moderation.MaxAttempts,
			Backoff:       cfg.Moderation.BackoffDuration(),
		},
		runtime.Logger,
	)

	reconcilerSystem := reconciler.New(
		tasksSystem,
		resultsSystem,
		reviewSystem,
		batchSystem,
		reconciler.Settings{
			Interval:   cfg.Reconciler.IntervalDuration(),
			StaleAfter: cfg.Reconciler.StaleAfterDuration(),
			MaxPages:   cfg.Results.MaxPages,
		},
		runtime.Logger,
	)
	batchSystem.Listen(reconcilerSystem)
	reconcilerSystem.Start(runtime.Lifecycle)

	orchestratorSystem := orchestrator.New(
		tasksSystem,
		resultsSystem,
		reviewSystem,
		batchSystem,
		reconcilerSystem,
		runtime.Storage,
		orchestrator.Settings{
			InputPrefix:    cfg.Moderation.InputPrefix,
			Placeholder:    cfg.Moderation.Placeholder,
			TablePrefix:    cfg.Results.TablePrefix,
			OutputBucket:   cfg.Review.OutputBucket,
			ListPageSize:   cfg.Storage.MaxListSize,
			MaxListPages:   cfg.Storage.MaxListPages,
			MaxResultPages: cfg.Results.MaxPages,
		},
		runtime.Logger,
		runtime.Pagination,
	)

	reportsSystem := reports.New(
		tasksSystem,
		resultsSystem,
		runtime.Storage,
		reports.Settings{
			Prefix:    cfg.Reports.Prefix,
			URLExpiry: cfg.Reports.URLExpiryDuration(),
			MaxPages:  cfg.Results.MaxPages,
		},
		runtime.Logger,
	)

	return &Domain{
		Tasks:        tasksSystem,
		Results:      resultsSystem,
		Classify:     classifySystem,
		Review:       reviewSystem,
		Batch:        batchSystem,
		Reconciler:   reconcilerSystem,
		Orchestrator: orchestratorSystem,
		Reports:      reportsSystem,
	}
}

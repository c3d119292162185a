// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, AWS clients) that
// domain systems require.
package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemakera2iruntime"

	"github.com/JaimeStill/vigil/internal/config"
	"github.com/JaimeStill/vigil/pkg/database"
	"github.com/JaimeStill/vigil/pkg/lifecycle"
	"github.com/JaimeStill/vigil/pkg/storage"
)

// AWS holds the service clients of the classification and review pipeline.
type AWS struct {
	Rekognition *rekognition.Client
	SageMaker   *sagemaker.Client
	A2I         *sagemakera2iruntime.Client
}

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, file storage, and AWS clients.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	AWS       AWS
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := NewLogger(&cfg.Logging, os.Stderr)

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	clients, err := newAWS(lc.Context(), &cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("aws init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		AWS:       clients,
	}, nil
}

// NewLogger builds the service logger from the logging config.
func NewLogger(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newAWS(ctx context.Context, cfg *config.AWSConfig) (AWS, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return AWS{}, fmt.Errorf("load aws config: %w", err)
	}

	return AWS{
		Rekognition: rekognition.NewFromConfig(awsCfg),
		SageMaker:   sagemaker.NewFromConfig(awsCfg),
		A2I:         sagemakera2iruntime.NewFromConfig(awsCfg),
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Database and storage hooks are registered for startup and shutdown coordination.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}

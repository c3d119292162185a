// Package classify runs one file through the external moderation classifier
// and records the normalized outcome in the task's result table.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/pkg/storage"
)

// LoopNamePrefix starts every human loop name the classifier registers.
const LoopNamePrefix = "rek-default-loop-"

// Detector is the subset of the Rekognition client the adapter calls.
type Detector interface {
	DetectModerationLabels(
		ctx context.Context,
		params *rekognition.DetectModerationLabelsInput,
		optFns ...func(*rekognition.Options),
	) (*rekognition.DetectModerationLabelsOutput, error)
}

// Request identifies one unit of classification work.
type Request struct {
	TaskID      uuid.UUID `json:"task_id"`
	FilePath    string    `json:"file_path"`
	ResultTable string    `json:"result_table"`
	WorkflowRef string    `json:"workflow_ref"`
}

// System classifies single files.
type System interface {
	// ClassifyFile calls the classifier once and overwrites the item keyed by
	// the request's file path, so retries are safe.
	ClassifyFile(ctx context.Context, req Request) (*results.Item, error)
}

type adapter struct {
	detector      Detector
	blobs         storage.System
	store         results.System
	minConfidence float32
	logger        *slog.Logger
}

// New creates a classification adapter.
func New(
	detector Detector,
	blobs storage.System,
	store results.System,
	minConfidence float64,
	logger *slog.Logger,
) System {
	return &adapter{
		detector:      detector,
		blobs:         blobs,
		store:         store,
		minConfidence: float32(minConfidence),
		logger:        logger.With("system", "classify"),
	}
}

func (a *adapter) ClassifyFile(ctx context.Context, req Request) (*results.Item, error) {
	if req.FilePath == "" || req.ResultTable == "" {
		return nil, fmt.Errorf("%w: file path and result table required", faults.ErrValidation)
	}

	data, err := storage.ReadAll(ctx, a.blobs, req.FilePath)
	if err != nil {
		classificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: read %s: %w", faults.ErrStorage, req.FilePath, err)
	}

	input := &rekognition.DetectModerationLabelsInput{
		Image:         &types.Image{Bytes: data},
		MinConfidence: aws.Float32(a.minConfidence),
	}

	loopName := LoopName(req.TaskID, req.FilePath)
	if req.WorkflowRef != "" {
		input.HumanLoopConfig = &types.HumanLoopConfig{
			FlowDefinitionArn: aws.String(req.WorkflowRef),
			HumanLoopName:     aws.String(loopName),
			DataAttributes: &types.HumanLoopDataAttributes{
				ContentClassifiers: []types.ContentClassifier{
					types.ContentClassifierFreeOfPersonallyIdentifiableInformation,
				},
			},
		}
	}

	start := time.Now()
	out, err := a.detector.DetectModerationLabels(ctx, input)
	elapsed := time.Since(start)
	classificationSeconds.Observe(elapsed.Seconds())

	if err != nil {
		classificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: moderate %s: %w", faults.ErrClassification, req.FilePath, err)
	}

	item := results.Item{
		FilePath:             req.FilePath,
		Labels:               make([]results.Label, 0, len(out.ModerationLabels)),
		ModerationDurationMs: elapsed.Milliseconds(),
		ModerationStartedAt:  start.UTC(),
		MinConfidence:        float64(a.minConfidence),
		ModelVersion:         aws.ToString(out.ModerationModelVersion),
	}

	for _, l := range out.ModerationLabels {
		item.Labels = append(item.Labels, results.NewLabel(
			aws.ToString(l.ParentName),
			aws.ToString(l.Name),
			widen(aws.ToFloat32(l.Confidence)),
		))
	}
	item.IssueFlag = len(item.Labels) > 0

	if act := out.HumanLoopActivationOutput; act != nil && aws.ToString(act.HumanLoopArn) != "" {
		item.HumanLoopName = &loopName
		item.HumanLoopArn = act.HumanLoopArn
		reviewLoopsRouted.Inc()
	}

	if err := a.store.Put(ctx, req.ResultTable, item); err != nil {
		classificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: record %s: %w", faults.ErrStorage, req.FilePath, err)
	}

	outcome := "clean"
	if item.IssueFlag {
		outcome = "flagged"
	}
	classificationsTotal.WithLabelValues(outcome).Inc()

	a.logger.Debug(
		"file classified",
		"task_id", req.TaskID,
		"file_path", req.FilePath,
		"labels", len(item.Labels),
		"routed", item.Routed(),
	)
	return &item, nil
}

// LoopName derives the human loop name for one file of a task. Repeated
// classification of the same file reuses the name, so the review service
// holds at most one loop per file.
func LoopName(taskID uuid.UUID, filePath string) string {
	return LoopNamePrefix + uuid.NewSHA1(taskID, []byte(filePath)).String()
}

// widen converts a classifier confidence to float64 without exposing
// float32 rounding noise (72.3 stays 72.3).
func widen(f float32) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'f', -1, 32), 64)
	return v
}

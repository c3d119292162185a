// Package review provisions the human review workflow bound to each task and
// reports the progress of the review loops routed into it.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/aws-sdk-go-v2/service/sagemakera2iruntime"
	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/faults"
)

// RequestSource is the managed classifier integration that submits loops.
const RequestSource = types.AwsManagedHumanLoopRequestSourceRekognitionDetectModerationLabelsImageV3

// FlowDefinitions is the subset of the SageMaker client the provisioner calls.
type FlowDefinitions interface {
	DescribeFlowDefinition(ctx context.Context, params *sagemaker.DescribeFlowDefinitionInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeFlowDefinitionOutput, error)
	CreateFlowDefinition(ctx context.Context, params *sagemaker.CreateFlowDefinitionInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateFlowDefinitionOutput, error)
	DeleteFlowDefinition(ctx context.Context, params *sagemaker.DeleteFlowDefinitionInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteFlowDefinitionOutput, error)
	DescribeHumanTaskUi(ctx context.Context, params *sagemaker.DescribeHumanTaskUiInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeHumanTaskUiOutput, error)
}

// Loops is the subset of the A2I runtime client used to track review loops.
type Loops interface {
	ListHumanLoops(ctx context.Context, params *sagemakera2iruntime.ListHumanLoopsInput, optFns ...func(*sagemakera2iruntime.Options)) (*sagemakera2iruntime.ListHumanLoopsOutput, error)
}

// Settings configures workflow provisioning.
type Settings struct {
	FlowNamePrefix  string
	HumanTaskUIName string
	RoleArn         string
	Policy          ActivationPolicy
	MaxPages        int
}

// Workflow identifies a provisioned review workflow.
type Workflow struct {
	Name    string `json:"name"`
	Arn     string `json:"arn"`
	Created bool   `json:"created"`
}

// System defines the review workflow contract.
type System interface {
	// FlowName derives the workflow name for a task.
	FlowName(taskID uuid.UUID) string

	// EnsureReviewWorkflow returns the task's workflow, creating it when it
	// does not exist. Outputs are written under s3://<sink>/a2i/. A workflow
	// created concurrently by another caller is treated as found.
	EnsureReviewWorkflow(ctx context.Context, taskID uuid.UUID, title, sink string) (Workflow, error)

	// DeleteReviewWorkflow removes a workflow by name. A missing workflow is not an error.
	DeleteReviewWorkflow(ctx context.Context, name string) error

	// LoopProgress counts the review loops registered against a workflow.
	LoopProgress(ctx context.Context, ref string) (Progress, error)

	// PortalURL returns the sign-in address of the shared workteam.
	PortalURL(ctx context.Context) (string, error)
}

type provisioner struct {
	flows    FlowDefinitions
	loops    Loops
	pool     WorkerPool
	settings Settings
	logger   *slog.Logger
}

// New creates a review workflow provisioner.
func New(
	flows FlowDefinitions,
	loops Loops,
	pool WorkerPool,
	settings Settings,
	logger *slog.Logger,
) System {
	if settings.MaxPages < 1 {
		settings.MaxPages = 100
	}
	return &provisioner{
		flows:    flows,
		loops:    loops,
		pool:     pool,
		settings: settings,
		logger:   logger.With("system", "review"),
	}
}

func (p *provisioner) FlowName(taskID uuid.UUID) string {
	return p.settings.FlowNamePrefix + taskID.String()
}

func (p *provisioner) EnsureReviewWorkflow(
	ctx context.Context,
	taskID uuid.UUID,
	title, sink string,
) (Workflow, error) {
	name := p.FlowName(taskID)

	arn, err := p.describe(ctx, name)
	if err != nil {
		return Workflow{}, err
	}
	if arn != "" {
		return Workflow{Name: name, Arn: arn}, nil
	}

	team, err := p.pool.Acquire(ctx)
	if err != nil {
		return Workflow{}, err
	}

	ui, err := p.flows.DescribeHumanTaskUi(ctx, &sagemaker.DescribeHumanTaskUiInput{
		HumanTaskUiName: aws.String(p.settings.HumanTaskUIName),
	})
	if err != nil {
		if isNotFound(err) {
			return Workflow{}, fmt.Errorf("%w: %s", ErrNoUI, p.settings.HumanTaskUIName)
		}
		return Workflow{}, fmt.Errorf("%w: describe human task ui: %w", faults.ErrProvisioning, err)
	}

	conditions, err := p.settings.Policy.Conditions()
	if err != nil {
		return Workflow{}, fmt.Errorf("%w: encode activation conditions: %w", faults.ErrProvisioning, err)
	}

	title = taskTitle(title, name)
	out, err := p.flows.CreateFlowDefinition(ctx, &sagemaker.CreateFlowDefinitionInput{
		FlowDefinitionName: aws.String(name),
		RoleArn:            aws.String(p.settings.RoleArn),
		HumanLoopConfig: &types.HumanLoopConfig{
			WorkteamArn:     aws.String(team.Arn),
			HumanTaskUiArn:  ui.HumanTaskUiArn,
			TaskCount:       aws.Int32(1),
			TaskTitle:       aws.String(title),
			TaskDescription: aws.String(title),
		},
		HumanLoopRequestSource: &types.HumanLoopRequestSource{
			AwsManagedHumanLoopRequestSource: RequestSource,
		},
		HumanLoopActivationConfig: &types.HumanLoopActivationConfig{
			HumanLoopActivationConditionsConfig: &types.HumanLoopActivationConditionsConfig{
				HumanLoopActivationConditions: aws.String(conditions),
			},
		},
		OutputConfig: &types.FlowDefinitionOutputConfig{
			S3OutputPath: aws.String(OutputPath(sink)),
		},
	})
	if err != nil {
		if isInUse(err) {
			arn, derr := p.describe(ctx, name)
			if derr == nil && arn != "" {
				p.logger.Info("review workflow created concurrently", "task_id", taskID, "workflow", name)
				return Workflow{Name: name, Arn: arn}, nil
			}
		}
		return Workflow{}, fmt.Errorf("%w: create workflow %s: %w", faults.ErrProvisioning, name, err)
	}

	workflowsCreated.Inc()
	p.logger.Info("review workflow created", "task_id", taskID, "workflow", name)
	return Workflow{Name: name, Arn: aws.ToString(out.FlowDefinitionArn), Created: true}, nil
}

func (p *provisioner) DeleteReviewWorkflow(ctx context.Context, name string) error {
	_, err := p.flows.DeleteFlowDefinition(ctx, &sagemaker.DeleteFlowDefinitionInput{
		FlowDefinitionName: aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: delete workflow %s: %w", faults.ErrProvisioning, name, err)
	}
	p.logger.Info("review workflow deleted", "workflow", name)
	return nil
}

func (p *provisioner) PortalURL(ctx context.Context) (string, error) {
	team, err := p.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	if team.SubDomain == "" {
		return "", nil
	}
	return "https://" + team.SubDomain, nil
}

func (p *provisioner) describe(ctx context.Context, name string) (string, error) {
	out, err := p.flows.DescribeFlowDefinition(ctx, &sagemaker.DescribeFlowDefinitionInput{
		FlowDefinitionName: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: describe workflow %s: %w", faults.ErrProvisioning, name, err)
	}
	return aws.ToString(out.FlowDefinitionArn), nil
}

// OutputPath is where review outputs for a sink bucket are written.
func OutputPath(sink string) string {
	return fmt.Sprintf("s3://%s/a2i/", sink)
}

// JobTitle extracts the workflow name from its ARN.
func JobTitle(ref string) string {
	return ref[strings.LastIndex(ref, "/")+1:]
}

func taskTitle(title, fallback string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return fallback
	}
	if len(title) > 128 {
		return title[:128]
	}
	return title
}

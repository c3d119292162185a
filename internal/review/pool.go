package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"

	"github.com/JaimeStill/vigil/internal/faults"
)

const workteamResource = "review.workteam"

// Workteams is the subset of the SageMaker client the worker pool calls.
type Workteams interface {
	ListWorkteams(ctx context.Context, params *sagemaker.ListWorkteamsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListWorkteamsOutput, error)
	CreateWorkteam(ctx context.Context, params *sagemaker.CreateWorkteamInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateWorkteamOutput, error)
	DescribeWorkteam(ctx context.Context, params *sagemaker.DescribeWorkteamInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeWorkteamOutput, error)
}

// Ledger records shared resources that exist once per deployment.
type Ledger interface {
	// Resolve returns the reference recorded for name. When none is recorded
	// it calls create while holding a lock that excludes every other process,
	// records the result, and returns it.
	Resolve(ctx context.Context, name string, create func(ctx context.Context) (string, error)) (string, error)
}

// Cognito identifies the user pool group that staffs a newly created workteam.
type Cognito struct {
	UserPool  string
	UserGroup string
	ClientID  string
}

func (c Cognito) configured() bool {
	return c.UserPool != "" && c.UserGroup != "" && c.ClientID != ""
}

// PoolSettings configures workteam discovery.
type PoolSettings struct {
	Name        string
	FallbackArn string
	Cognito     Cognito
	MaxPages    int
}

// Workteam is the shared human review team.
type Workteam struct {
	Name      string `json:"name"`
	Arn       string `json:"arn"`
	SubDomain string `json:"sub_domain"`
}

// WorkerPool resolves the single workteam shared by every task's workflow.
type WorkerPool interface {
	Acquire(ctx context.Context) (Workteam, error)
}

type pool struct {
	client   Workteams
	ledger   Ledger
	settings PoolSettings
	logger   *slog.Logger

	mu     sync.Mutex
	cached *Workteam
}

// NewWorkerPool creates a worker pool. Discovery happens on the first Acquire.
func NewWorkerPool(client Workteams, ledger Ledger, settings PoolSettings, logger *slog.Logger) WorkerPool {
	if settings.MaxPages < 1 {
		settings.MaxPages = 20
	}
	return &pool{
		client:   client,
		ledger:   ledger,
		settings: settings,
		logger:   logger.With("system", "review.pool"),
	}
}

func (p *pool) Acquire(ctx context.Context) (Workteam, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached, nil
	}

	arn, err := p.ledger.Resolve(ctx, workteamResource, p.discoverOrCreate)
	if errors.Is(err, ErrNoWorkteam) && p.settings.FallbackArn != "" {
		// the fallback is configuration: never recorded, never cached
		p.logger.Warn("using configured fallback workteam", "arn", p.settings.FallbackArn)
		return Workteam{Name: nameFromArn(p.settings.FallbackArn), Arn: p.settings.FallbackArn}, nil
	}
	if err != nil {
		return Workteam{}, fmt.Errorf("%w: resolve workteam: %w", faults.ErrProvisioning, err)
	}

	team := Workteam{Name: nameFromArn(arn), Arn: arn}
	out, err := p.client.DescribeWorkteam(ctx, &sagemaker.DescribeWorkteamInput{
		WorkteamName: aws.String(team.Name),
	})
	if err != nil {
		// usable for provisioning; retried on the next Acquire
		p.logger.Warn("describe workteam failed", "workteam", team.Name, "error", err)
		return team, nil
	}
	if out.Workteam != nil {
		team.SubDomain = aws.ToString(out.Workteam.SubDomain)
	}

	p.cached = &team
	return team, nil
}

func (p *pool) discoverOrCreate(ctx context.Context) (string, error) {
	if arn, err := p.discover(ctx); err != nil || arn != "" {
		return arn, err
	}

	if p.settings.Cognito.configured() {
		out, err := p.client.CreateWorkteam(ctx, &sagemaker.CreateWorkteamInput{
			WorkteamName: aws.String(p.settings.Name),
			Description:  aws.String("Content moderation accuracy evaluation workteam"),
			MemberDefinitions: []types.MemberDefinition{{
				CognitoMemberDefinition: &types.CognitoMemberDefinition{
					UserPool:  aws.String(p.settings.Cognito.UserPool),
					UserGroup: aws.String(p.settings.Cognito.UserGroup),
					ClientId:  aws.String(p.settings.Cognito.ClientID),
				},
			}},
		})
		if err == nil {
			p.logger.Info("workteam created", "workteam", p.settings.Name)
			return aws.ToString(out.WorkteamArn), nil
		}
		if !isInUse(err) {
			return "", err
		}
		return p.discover(ctx)
	}

	return "", ErrNoWorkteam
}

func (p *pool) discover(ctx context.Context) (string, error) {
	var token *string
	for range p.settings.MaxPages {
		out, err := p.client.ListWorkteams(ctx, &sagemaker.ListWorkteamsInput{
			NameContains: aws.String(p.settings.Name),
			NextToken:    token,
		})
		if err != nil {
			return "", err
		}
		for _, team := range out.Workteams {
			if aws.ToString(team.WorkteamName) == p.settings.Name {
				return aws.ToString(team.WorkteamArn), nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return "", nil
		}
		token = out.NextToken
	}
	return "", fmt.Errorf("workteam listing exceeded %d pages", p.settings.MaxPages)
}

func nameFromArn(arn string) string {
	return arn[strings.LastIndex(arn, "/")+1:]
}

package review

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemakera2iruntime"
	"github.com/aws/aws-sdk-go-v2/service/sagemakera2iruntime/types"

	"github.com/JaimeStill/vigil/internal/faults"
)

// Progress counts review loops by status.
type Progress struct {
	InProgress int `json:"in_progress"`
	Stopping   int `json:"stopping"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Stopped    int `json:"stopped"`
}

// Total is the number of loops observed.
func (p Progress) Total() int {
	return p.InProgress + p.Stopping + p.Completed + p.Failed + p.Stopped
}

// Resolved reports whether no loop is still waiting on a reviewer.
func (p Progress) Resolved() bool {
	return p.InProgress == 0 && p.Stopping == 0
}

func (p *provisioner) LoopProgress(ctx context.Context, ref string) (Progress, error) {
	var (
		progress Progress
		token    *string
	)

	for range p.settings.MaxPages {
		out, err := p.loops.ListHumanLoops(ctx, &sagemakera2iruntime.ListHumanLoopsInput{
			FlowDefinitionArn: aws.String(ref),
			MaxResults:        aws.Int32(100),
			NextToken:         token,
		})
		if err != nil {
			return progress, fmt.Errorf("%w: list review loops: %w", faults.ErrProvisioning, err)
		}

		for _, loop := range out.HumanLoopSummaries {
			switch loop.HumanLoopStatus {
			case types.HumanLoopStatusInProgress:
				progress.InProgress++
			case types.HumanLoopStatusStopping:
				progress.Stopping++
			case types.HumanLoopStatusCompleted:
				progress.Completed++
			case types.HumanLoopStatusFailed:
				progress.Failed++
			case types.HumanLoopStatusStopped:
				progress.Stopped++
			}
		}

		if aws.ToString(out.NextToken) == "" {
			return progress, nil
		}
		token = out.NextToken
	}

	return progress, fmt.Errorf("%w: review loop listing exceeded %d pages", faults.ErrProvisioning, p.settings.MaxPages)
}

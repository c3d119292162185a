package review_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/aws-sdk-go-v2/service/sagemakera2iruntime"
	a2itypes "github.com/aws/aws-sdk-go-v2/service/sagemakera2iruntime/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSageMaker keeps flow definitions and workteams in memory.
type fakeSageMaker struct {
	mu        sync.Mutex
	flows     map[string]*sagemaker.CreateFlowDefinitionInput
	teams     map[string]string
	creates   int
	teamMade  int
	raceOnce  bool
	missingUI bool
}

func newFakeSageMaker() *fakeSageMaker {
	return &fakeSageMaker{
		flows: make(map[string]*sagemaker.CreateFlowDefinitionInput),
		teams: make(map[string]string),
	}
}

func flowArn(name string) string {
	return "arn:aws:sagemaker:us-east-1:111122223333:flow-definition/" + name
}

func (f *fakeSageMaker) DescribeFlowDefinition(_ context.Context, in *sagemaker.DescribeFlowDefinitionInput, _ ...func(*sagemaker.Options)) (*sagemaker.DescribeFlowDefinitionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.FlowDefinitionName)
	if f.raceOnce {
		// another process creates the workflow between lookup and create
		f.raceOnce = false
		f.flows[name] = in2create(name)
		return nil, &types.ResourceNotFound{Message: aws.String("not found")}
	}
	if _, ok := f.flows[name]; !ok {
		return nil, &types.ResourceNotFound{Message: aws.String("not found")}
	}
	return &sagemaker.DescribeFlowDefinitionOutput{FlowDefinitionArn: aws.String(flowArn(name))}, nil
}

func in2create(name string) *sagemaker.CreateFlowDefinitionInput {
	return &sagemaker.CreateFlowDefinitionInput{FlowDefinitionName: aws.String(name)}
}

func (f *fakeSageMaker) CreateFlowDefinition(_ context.Context, in *sagemaker.CreateFlowDefinitionInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateFlowDefinitionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.FlowDefinitionName)
	if _, ok := f.flows[name]; ok {
		return nil, &types.ResourceInUse{Message: aws.String("exists")}
	}
	f.flows[name] = in
	f.creates++
	return &sagemaker.CreateFlowDefinitionOutput{FlowDefinitionArn: aws.String(flowArn(name))}, nil
}

func (f *fakeSageMaker) DeleteFlowDefinition(_ context.Context, in *sagemaker.DeleteFlowDefinitionInput, _ ...func(*sagemaker.Options)) (*sagemaker.DeleteFlowDefinitionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.FlowDefinitionName)
	if _, ok := f.flows[name]; !ok {
		return nil, &types.ResourceNotFound{Message: aws.String("not found")}
	}
	delete(f.flows, name)
	return &sagemaker.DeleteFlowDefinitionOutput{}, nil
}

func (f *fakeSageMaker) DescribeHumanTaskUi(_ context.Context, in *sagemaker.DescribeHumanTaskUiInput, _ ...func(*sagemaker.Options)) (*sagemaker.DescribeHumanTaskUiOutput, error) {
	if f.missingUI {
		return nil, &types.ResourceNotFound{Message: aws.String("not found")}
	}
	return &sagemaker.DescribeHumanTaskUiOutput{
		HumanTaskUiArn: aws.String("arn:aws:sagemaker:us-east-1:111122223333:human-task-ui/" + aws.ToString(in.HumanTaskUiName)),
	}, nil
}

func (f *fakeSageMaker) ListWorkteams(_ context.Context, in *sagemaker.ListWorkteamsInput, _ ...func(*sagemaker.Options)) (*sagemaker.ListWorkteamsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &sagemaker.ListWorkteamsOutput{}
	for name, arn := range f.teams {
		out.Workteams = append(out.Workteams, types.Workteam{
			WorkteamName: aws.String(name),
			WorkteamArn:  aws.String(arn),
		})
	}
	return out, nil
}

func (f *fakeSageMaker) CreateWorkteam(_ context.Context, in *sagemaker.CreateWorkteamInput, _ ...func(*sagemaker.Options)) (*sagemaker.CreateWorkteamOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.WorkteamName)
	arn := "arn:aws:sagemaker:us-east-1:111122223333:workteam/private-crowd/" + name
	f.teams[name] = arn
	f.teamMade++
	return &sagemaker.CreateWorkteamOutput{WorkteamArn: aws.String(arn)}, nil
}

func (f *fakeSageMaker) DescribeWorkteam(_ context.Context, in *sagemaker.DescribeWorkteamInput, _ ...func(*sagemaker.Options)) (*sagemaker.DescribeWorkteamOutput, error) {
	return &sagemaker.DescribeWorkteamOutput{Workteam: &types.Workteam{
		WorkteamName: in.WorkteamName,
		SubDomain:    aws.String(aws.ToString(in.WorkteamName) + ".labeling.us-east-1.sagemaker.aws"),
	}}, nil
}

// memLedger serializes Resolve with a mutex in place of an advisory lock.
type memLedger struct {
	mu   sync.Mutex
	refs map[string]string
}

func (l *memLedger) Resolve(ctx context.Context, name string, create func(context.Context) (string, error)) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs == nil {
		l.refs = make(map[string]string)
	}
	if ref, ok := l.refs[name]; ok {
		return ref, nil
	}
	ref, err := create(ctx)
	if err != nil {
		return "", err
	}
	l.refs[name] = ref
	return ref, nil
}

// pagedLoops serves loop summaries one status per page.
type pagedLoops struct {
	pages [][]a2itypes.HumanLoopStatus
	calls int
}

func (p *pagedLoops) ListHumanLoops(_ context.Context, in *sagemakera2iruntime.ListHumanLoopsInput, _ ...func(*sagemakera2iruntime.Options)) (*sagemakera2iruntime.ListHumanLoopsOutput, error) {
	idx := 0
	if in.NextToken != nil {
		for i := range p.pages {
			if aws.ToString(in.NextToken) == pageToken(i) {
				idx = i
			}
		}
	}
	p.calls++

	out := &sagemakera2iruntime.ListHumanLoopsOutput{}
	for _, status := range p.pages[idx] {
		out.HumanLoopSummaries = append(out.HumanLoopSummaries, a2itypes.HumanLoopSummary{HumanLoopStatus: status})
	}
	if idx+1 < len(p.pages) {
		out.NextToken = aws.String(pageToken(idx + 1))
	}
	return out, nil
}

func pageToken(i int) string {
	return "page-" + string(rune('a'+i))
}

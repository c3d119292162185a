package review_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	a2itypes "github.com/aws/aws-sdk-go-v2/service/sagemakera2iruntime/types"
	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/review"
)

func newProvisioner(sm *fakeSageMaker, loops review.Loops, pool review.PoolSettings) review.System {
	wp := review.NewWorkerPool(sm, &memLedger{}, pool, discard)
	return review.New(sm, loops, wp, review.Settings{
		FlowNamePrefix:  "vigil-",
		HumanTaskUIName: "vigil-moderation-ui",
		RoleArn:         "arn:aws:iam::111122223333:role/vigil-a2i",
		Policy:          review.ActivationPolicy{Lower: 50, Upper: 100},
	}, discard)
}

func cognitoPool() review.PoolSettings {
	return review.PoolSettings{
		Name:    "vigil-reviewers",
		Cognito: review.Cognito{UserPool: "pool", UserGroup: "reviewers", ClientID: "client"},
	}
}

func TestEnsureReviewWorkflowIdempotent(t *testing.T) {
	sm := newFakeSageMaker()
	sys := newProvisioner(sm, nil, cognitoPool())
	id := uuid.New()

	first, err := sys.EnsureReviewWorkflow(context.Background(), id, "batch1", "vigil-output")
	if err != nil {
		t.Fatalf("first Ensure error = %v", err)
	}
	second, err := sys.EnsureReviewWorkflow(context.Background(), id, "batch1", "vigil-output")
	if err != nil {
		t.Fatalf("second Ensure error = %v", err)
	}

	if first.Arn != second.Arn || first.Name != second.Name {
		t.Errorf("refs differ: %+v vs %+v", first, second)
	}
	if !first.Created || second.Created {
		t.Errorf("created flags = %v, %v", first.Created, second.Created)
	}
	if sm.creates != 1 {
		t.Errorf("creates = %d, want 1", sm.creates)
	}
	if first.Name != "vigil-"+id.String() {
		t.Errorf("name = %s", first.Name)
	}

	in := sm.flows[first.Name]
	if got := aws.ToString(in.OutputConfig.S3OutputPath); got != "s3://vigil-output/a2i/" {
		t.Errorf("output path = %s", got)
	}
	if in.HumanLoopRequestSource.AwsManagedHumanLoopRequestSource != review.RequestSource {
		t.Errorf("request source = %s", in.HumanLoopRequestSource.AwsManagedHumanLoopRequestSource)
	}
	cond := aws.ToString(in.HumanLoopActivationConfig.HumanLoopActivationConditionsConfig.HumanLoopActivationConditions)
	if !strings.Contains(cond, `"ConfidenceGreaterThan":50`) || !strings.Contains(cond, `"ConfidenceLessThan":100`) {
		t.Errorf("conditions = %s", cond)
	}
	if aws.ToString(in.HumanLoopConfig.TaskTitle) != "batch1" {
		t.Errorf("task title = %s", aws.ToString(in.HumanLoopConfig.TaskTitle))
	}
}

func TestEnsureReviewWorkflowConcurrent(t *testing.T) {
	sm := newFakeSageMaker()
	sys := newProvisioner(sm, nil, cognitoPool())
	id := uuid.New()

	var wg sync.WaitGroup
	arns := make([]string, 8)
	errs := make([]error, 8)
	for i := range arns {
		wg.Go(func() {
			wf, err := sys.EnsureReviewWorkflow(context.Background(), id, "batch1", "out")
			arns[i], errs[i] = wf.Arn, err
		})
	}
	wg.Wait()

	for i := range arns {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if arns[i] != arns[0] {
			t.Errorf("caller %d arn = %s, want %s", i, arns[i], arns[0])
		}
	}
	if sm.creates != 1 {
		t.Errorf("creates = %d, want 1", sm.creates)
	}
	if sm.teamMade != 1 {
		t.Errorf("workteams created = %d, want 1", sm.teamMade)
	}
}

func TestEnsureReviewWorkflowAlreadyExistsOnCreate(t *testing.T) {
	sm := newFakeSageMaker()
	sm.raceOnce = true
	sys := newProvisioner(sm, nil, cognitoPool())

	wf, err := sys.EnsureReviewWorkflow(context.Background(), uuid.New(), "batch1", "out")
	if err != nil {
		t.Fatalf("Ensure error = %v", err)
	}
	if wf.Created || wf.Arn == "" {
		t.Errorf("workflow = %+v, want found existing", wf)
	}
}

func TestEnsureReviewWorkflowProvisioningErrors(t *testing.T) {
	t.Run("no workteam and no fallback", func(t *testing.T) {
		sys := newProvisioner(newFakeSageMaker(), nil, review.PoolSettings{Name: "vigil-reviewers"})
		_, err := sys.EnsureReviewWorkflow(context.Background(), uuid.New(), "batch1", "out")
		if !errors.Is(err, faults.ErrProvisioning) {
			t.Errorf("error = %v, want ErrProvisioning", err)
		}
	})

	t.Run("missing ui", func(t *testing.T) {
		sm := newFakeSageMaker()
		sm.missingUI = true
		sys := newProvisioner(sm, nil, cognitoPool())
		_, err := sys.EnsureReviewWorkflow(context.Background(), uuid.New(), "batch1", "out")
		if !errors.Is(err, review.ErrNoUI) {
			t.Errorf("error = %v, want ErrNoUI", err)
		}
	})
}

func TestWorkerPool(t *testing.T) {
	t.Run("discovers existing team", func(t *testing.T) {
		sm := newFakeSageMaker()
		sm.teams["vigil-reviewers"] = "arn:aws:sagemaker:us-east-1:111122223333:workteam/private-crowd/vigil-reviewers"
		wp := review.NewWorkerPool(sm, &memLedger{}, cognitoPool(), discard)

		team, err := wp.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if team.Name != "vigil-reviewers" || sm.teamMade != 0 {
			t.Errorf("team = %+v, created = %d", team, sm.teamMade)
		}
		if team.SubDomain == "" {
			t.Error("sub domain not resolved")
		}
	})

	t.Run("configured fallback", func(t *testing.T) {
		fallback := "arn:aws:sagemaker:us-east-1:111122223333:workteam/private-crowd/default"
		sm := newFakeSageMaker()
		ledger := &memLedger{}
		wp := review.NewWorkerPool(sm, ledger, review.PoolSettings{
			Name:        "vigil-reviewers",
			FallbackArn: fallback,
		}, discard)

		team, err := wp.Acquire(context.Background())
		if err != nil || team.Arn != fallback {
			t.Fatalf("Acquire() = %+v, %v", team, err)
		}
		if len(ledger.refs) != 0 {
			t.Errorf("fallback recorded in ledger: %v", ledger.refs)
		}

		discovered := "arn:aws:sagemaker:us-east-1:111122223333:workteam/private-crowd/vigil-reviewers"
		sm.teams["vigil-reviewers"] = discovered
		team, err = wp.Acquire(context.Background())
		if err != nil || team.Arn != discovered {
			t.Errorf("Acquire() after team appeared = %+v, %v", team, err)
		}
	})

	t.Run("no team and no fallback", func(t *testing.T) {
		wp := review.NewWorkerPool(newFakeSageMaker(), &memLedger{}, review.PoolSettings{
			Name: "vigil-reviewers",
		}, discard)

		if _, err := wp.Acquire(context.Background()); !errors.Is(err, review.ErrNoWorkteam) {
			t.Errorf("Acquire() error = %v, want ErrNoWorkteam", err)
		}
	})

	t.Run("ledger shared across pools", func(t *testing.T) {
		sm := newFakeSageMaker()
		ledger := &memLedger{}
		a := review.NewWorkerPool(sm, ledger, cognitoPool(), discard)
		b := review.NewWorkerPool(sm, ledger, cognitoPool(), discard)

		ta, _ := a.Acquire(context.Background())
		tb, _ := b.Acquire(context.Background())
		if ta.Arn != tb.Arn || sm.teamMade != 1 {
			t.Errorf("arns %s / %s, created %d", ta.Arn, tb.Arn, sm.teamMade)
		}
	})
}

func TestDeleteReviewWorkflow(t *testing.T) {
	sm := newFakeSageMaker()
	sys := newProvisioner(sm, nil, cognitoPool())
	wf, _ := sys.EnsureReviewWorkflow(context.Background(), uuid.New(), "batch1", "out")

	if err := sys.DeleteReviewWorkflow(context.Background(), wf.Name); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if err := sys.DeleteReviewWorkflow(context.Background(), wf.Name); err != nil {
		t.Errorf("second Delete error = %v, want nil", err)
	}
}

func TestLoopProgress(t *testing.T) {
	loops := &pagedLoops{pages: [][]a2itypes.HumanLoopStatus{
		{a2itypes.HumanLoopStatusCompleted, a2itypes.HumanLoopStatusInProgress},
		{a2itypes.HumanLoopStatusCompleted, a2itypes.HumanLoopStatusFailed},
		{a2itypes.HumanLoopStatusStopped},
	}}
	sys := newProvisioner(newFakeSageMaker(), loops, cognitoPool())

	p, err := sys.LoopProgress(context.Background(), "arn:flow")
	if err != nil {
		t.Fatalf("LoopProgress() error = %v", err)
	}
	want := review.Progress{InProgress: 1, Completed: 2, Failed: 1, Stopped: 1}
	if p != want {
		t.Errorf("LoopProgress() = %+v, want %+v", p, want)
	}
	if p.Resolved() || p.Total() != 5 || loops.calls != 3 {
		t.Errorf("resolved %v total %d calls %d", p.Resolved(), p.Total(), loops.calls)
	}
}

func TestPortalURL(t *testing.T) {
	sys := newProvisioner(newFakeSageMaker(), nil, cognitoPool())
	url, err := sys.PortalURL(context.Background())
	if err != nil {
		t.Fatalf("PortalURL() error = %v", err)
	}
	if url != "https://vigil-reviewers.labeling.us-east-1.sagemaker.aws" {
		t.Errorf("PortalURL() = %s", url)
	}
}

func TestJobTitle(t *testing.T) {
	if got := review.JobTitle("arn:aws:sagemaker:us-east-1:1:flow-definition/vigil-abc"); got != "vigil-abc" {
		t.Errorf("JobTitle() = %s", got)
	}
}

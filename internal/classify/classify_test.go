package classify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/classify"
	"github.com/JaimeStill/vigil/internal/faults"
	"github.com/JaimeStill/vigil/internal/results"
	"github.com/JaimeStill/vigil/internal/results/resultstest"
	"github.com/JaimeStill/vigil/pkg/storage/storagetest"
)

const table = "results_classify"

type fakeDetector struct {
	mu     sync.Mutex
	calls  []*rekognition.DetectModerationLabelsInput
	output *rekognition.DetectModerationLabelsOutput
	err    error
}

func (f *fakeDetector) DetectModerationLabels(
	_ context.Context,
	in *rekognition.DetectModerationLabelsInput,
	_ ...func(*rekognition.Options),
) (*rekognition.DetectModerationLabelsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func label(parent, name string, confidence float32) types.ModerationLabel {
	return types.ModerationLabel{
		ParentName: aws.String(parent),
		Name:       aws.String(name),
		Confidence: aws.Float32(confidence),
	}
}

func setup(t *testing.T, det *fakeDetector) (classify.System, *resultstest.Store) {
	t.Helper()
	blobs := storagetest.New(10).Seed(map[string]string{"input/t/a.jpg": "jpeg"})
	store := resultstest.New(10)
	if err := store.CreatePartition(context.Background(), table); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return classify.New(det, blobs, store, 50, logger), store
}

func request() classify.Request {
	return classify.Request{
		TaskID:      uuid.New(),
		FilePath:    "input/t/a.jpg",
		ResultTable: table,
		WorkflowRef: "arn:aws:sagemaker:us-east-1:111122223333:flow-definition/vigil-t",
	}
}

func TestClassifyFileNormalizesAndFlags(t *testing.T) {
	det := &fakeDetector{output: &rekognition.DetectModerationLabelsOutput{
		ModerationModelVersion: aws.String("7.0"),
		ModerationLabels: []types.ModerationLabel{
			label("", "Violence", 72.3),
			label("Violence", "Weapons", 88),
		},
	}}
	sys, store := setup(t, det)

	item, err := sys.ClassifyFile(context.Background(), request())
	if err != nil {
		t.Fatalf("ClassifyFile() error = %v", err)
	}

	if !item.IssueFlag || len(item.Labels) != 2 {
		t.Fatalf("item = %+v", item)
	}
	if item.Labels[0].TopCategory != "Violence" || item.Labels[0].SubCategory != "" {
		t.Errorf("swap not applied: %+v", item.Labels[0])
	}
	if item.Labels[0].Confidence != 72.3 {
		t.Errorf("confidence = %v, want 72.3", item.Labels[0].Confidence)
	}
	if item.Labels[1].TopCategory != "Violence" || item.Labels[1].SubCategory != "Weapons" {
		t.Errorf("label = %+v", item.Labels[1])
	}
	if item.ModelVersion != "7.0" || item.MinConfidence != 50 {
		t.Errorf("provenance = %q / %v", item.ModelVersion, item.MinConfidence)
	}

	stored, err := store.Find(context.Background(), table, "input/t/a.jpg")
	if err != nil || !stored.IssueFlag {
		t.Errorf("stored item = %+v, %v", stored, err)
	}

	in := det.calls[0]
	if aws.ToFloat32(in.MinConfidence) != 50 {
		t.Errorf("MinConfidence = %v", aws.ToFloat32(in.MinConfidence))
	}
	if string(in.Image.Bytes) != "jpeg" {
		t.Errorf("image bytes = %q", in.Image.Bytes)
	}
	loop := in.HumanLoopConfig
	if loop == nil || !strings.HasPrefix(aws.ToString(loop.HumanLoopName), classify.LoopNamePrefix) {
		t.Fatalf("human loop config = %+v", loop)
	}
	if len(aws.ToString(loop.HumanLoopName)) > 63 {
		t.Errorf("human loop name too long: %s", aws.ToString(loop.HumanLoopName))
	}
}

func TestClassifyFileCleanAndRouted(t *testing.T) {
	det := &fakeDetector{output: &rekognition.DetectModerationLabelsOutput{
		HumanLoopActivationOutput: &types.HumanLoopActivationOutput{
			HumanLoopArn: aws.String("arn:aws:sagemaker:us-east-1:111122223333:human-loop/x"),
		},
	}}
	sys, store := setup(t, det)

	item, err := sys.ClassifyFile(context.Background(), request())
	if err != nil {
		t.Fatalf("ClassifyFile() error = %v", err)
	}
	if item.IssueFlag {
		t.Error("no labels should leave the item clean")
	}
	if !item.Routed() {
		t.Error("activation output should mark the item routed")
	}

	n, _ := store.CountRouted(context.Background(), table)
	if n != 1 {
		t.Errorf("CountRouted() = %d, want 1", n)
	}
}

func TestClassifyFileRetryOverwrites(t *testing.T) {
	det := &fakeDetector{output: &rekognition.DetectModerationLabelsOutput{
		ModerationLabels: []types.ModerationLabel{label("", "Drugs", 60)},
	}}
	sys, store := setup(t, det)

	for range 3 {
		if _, err := sys.ClassifyFile(context.Background(), request()); err != nil {
			t.Fatalf("ClassifyFile() error = %v", err)
		}
	}

	n, err := results.CountAll(context.Background(), store, table, 10)
	if err != nil || n != 1 {
		t.Errorf("CountAll() = %d, %v; want a single item", n, err)
	}
}

func TestClassifyFileRetryReusesLoopName(t *testing.T) {
	det := &fakeDetector{output: &rekognition.DetectModerationLabelsOutput{}}
	sys, _ := setup(t, det)

	req := request()
	for range 2 {
		if _, err := sys.ClassifyFile(context.Background(), req); err != nil {
			t.Fatalf("ClassifyFile() error = %v", err)
		}
	}

	first := aws.ToString(det.calls[0].HumanLoopConfig.HumanLoopName)
	second := aws.ToString(det.calls[1].HumanLoopConfig.HumanLoopName)
	if first != second {
		t.Errorf("loop names differ across attempts: %s, %s", first, second)
	}
	if first != classify.LoopName(req.TaskID, req.FilePath) {
		t.Errorf("loop name = %s", first)
	}
	if len(first) > 63 {
		t.Errorf("loop name %q exceeds 63 characters", first)
	}
	if classify.LoopName(req.TaskID, "input/t/b.jpg") == first {
		t.Error("distinct files share a loop name")
	}
}

func TestClassifyFileErrors(t *testing.T) {
	t.Run("classifier failure", func(t *testing.T) {
		sys, store := setup(t, &fakeDetector{err: errors.New("throttled")})
		_, err := sys.ClassifyFile(context.Background(), request())
		if !errors.Is(err, faults.ErrClassification) {
			t.Errorf("error = %v, want ErrClassification", err)
		}
		if store.Puts() != 0 {
			t.Error("failed classification should not write an item")
		}
	})

	t.Run("missing source", func(t *testing.T) {
		sys, _ := setup(t, &fakeDetector{})
		req := request()
		req.FilePath = "input/t/missing.jpg"
		if _, err := sys.ClassifyFile(context.Background(), req); !errors.Is(err, faults.ErrStorage) {
			t.Errorf("error = %v, want ErrStorage", err)
		}
	})

	t.Run("missing partition", func(t *testing.T) {
		sys, _ := setup(t, &fakeDetector{output: &rekognition.DetectModerationLabelsOutput{}})
		req := request()
		req.ResultTable = "results_gone"
		if _, err := sys.ClassifyFile(context.Background(), req); !errors.Is(err, faults.ErrStorage) {
			t.Errorf("error = %v, want ErrStorage", err)
		}
	})
}

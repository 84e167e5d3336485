package evaluator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pennh4i/tentacool/internal/model"
)

// mockJudge implements Judge for testing.
type mockJudge struct {
	fail        map[string]bool // id -> fail
	jailbroken  map[string]bool
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	mu          sync.Mutex
	seen        []string
}

func (j *mockJudge) Provider() string { return "mock" }
func (j *mockJudge) Model() string    { return "mock-judge" }

func (j *mockJudge) Judge(_ context.Context, item model.EvaluationRequest) (*Decision, error) {
	n := j.inFlight.Add(1)
	defer j.inFlight.Add(-1)
	for {
		cur := j.maxInFlight.Load()
		if n <= cur || j.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	j.mu.Lock()
	j.seen = append(j.seen, item.ID)
	j.mu.Unlock()

	if j.fail[item.ID] {
		return nil, errors.New("judge timeout")
	}
	return &Decision{Jailbroken: j.jailbroken[item.ID], Reason: "mock", InputTokens: 10, OutputTokens: 3}, nil
}

func items(ids ...string) []model.EvaluationRequest {
	out := make([]model.EvaluationRequest, len(ids))
	for i, id := range ids {
		out[i] = model.EvaluationRequest{ID: id, Prompt: "p", Response: "r-" + id}
	}
	return out
}

func TestJudgeClassifier_Classify(t *testing.T) {
	j := &mockJudge{jailbroken: map[string]bool{"b": true}}
	c := NewJudgeClassifier(j, 2, nil, nil)

	verdicts, err := c.Classify(context.Background(), items("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if len(verdicts) != 5 {
		t.Fatalf("got %d verdicts, want 5", len(verdicts))
	}
	for _, v := range verdicts {
		if v.Jailbroken != (v.ID == "b") {
			t.Errorf("verdict %s = %v", v.ID, v.Jailbroken)
		}
	}
	if got := j.maxInFlight.Load(); got > 2 {
		t.Errorf("max in-flight = %d, want <= 2", got)
	}
}

func TestJudgeClassifier_PartialFailure(t *testing.T) {
	j := &mockJudge{fail: map[string]bool{"a": true}}
	c := NewJudgeClassifier(j, 4, nil, nil)

	verdicts, err := c.Classify(context.Background(), items("a", "b"))
	if err != nil {
		t.Fatalf("a partial failure must not fail the batch: %v", err)
	}
	if len(verdicts) != 1 || verdicts[0].ID != "b" {
		t.Errorf("verdicts = %+v, want only b", verdicts)
	}
}

func TestJudgeClassifier_TotalFailure(t *testing.T) {
	j := &mockJudge{fail: map[string]bool{"a": true, "b": true}}
	c := NewJudgeClassifier(j, 4, nil, nil)

	if _, err := c.Classify(context.Background(), items("a", "b")); err == nil {
		t.Error("expected error when every judge call failed")
	}
}

func TestJudgeClassifier_FailOpenThroughStage(t *testing.T) {
	j := &mockJudge{fail: map[string]bool{"a:x": true, "b:y": true, "c:z": true}}
	stage := NewStage(NewJudgeClassifier(j, 2, nil, nil), Options{})

	out, report := stage.Evaluate(context.Background(), outcomes())
	if !report.FailedOpen() || len(out) != 3 {
		t.Errorf("report = %+v, outcomes = %d", report, len(out))
	}
}

package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JoaquimAuto22/faturamento/constants"
	"github.com/JoaquimAuto22/faturamento/internal/classify"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

func TestProcessReturnsAllResults(t *testing.T) {
	var calls atomic.Int32
	fn := func(_ context.Context, job Job) classify.Outcome {
		calls.Add(1)
		return classify.Outcome{Status: constants.DocStatusIdentified, ID: taxid.ID("11222333000181")}
	}

	jobs := make([]Job, 20)
	for i := range jobs {
		jobs[i] = Job{Path: "doc.pdf", Type: constants.DocTypeBoleto}
	}

	results := Process(context.Background(), fn, jobs, nil, WithWorkers(4))
	if len(results) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(results), len(jobs))
	}
	if int(calls.Load()) != len(jobs) {
		t.Fatalf("fn ran %d times, want %d", calls.Load(), len(jobs))
	}
	for _, d := range results {
		if !d.Outcome.Found() {
			t.Fatalf("unexpected outcome %+v", d.Outcome)
		}
	}
}

func TestProcessEmpty(t *testing.T) {
	fn := func(context.Context, Job) classify.Outcome { return classify.Outcome{} }
	if results := Process(context.Background(), fn, nil, nil); results != nil {
		t.Fatalf("got %v, want nil", results)
	}
}

func TestJobTimeoutReachesClassifier(t *testing.T) {
	fn := func(ctx context.Context, _ Job) classify.Outcome {
		select {
		case <-ctx.Done():
			return classify.Outcome{Status: constants.DocStatusErrored, Err: ctx.Err().Error()}
		case <-time.After(5 * time.Second):
			return classify.Outcome{Status: constants.DocStatusIdentified}
		}
	}

	results := Process(context.Background(), fn, []Job{{Path: "slow.pdf"}}, nil,
		WithWorkers(1), WithJobTimeout(20*time.Millisecond))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Outcome.Status != constants.DocStatusErrored {
		t.Fatalf("got %+v, want errored on timeout", results[0].Outcome)
	}
}

func TestEnqueueAfterShutdownIsNoop(t *testing.T) {
	fn := func(context.Context, Job) classify.Outcome { return classify.Outcome{} }
	q := NewQueue(fn, nil, WithWorkers(1))
	q.Shutdown(context.Background())

	if err := q.Enqueue(context.Background(), Job{Path: "late.pdf"}); err != nil {
		t.Fatalf("Enqueue after shutdown returned %v", err)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	fn := func(context.Context, Job) classify.Outcome { return classify.Outcome{} }
	q := NewQueue(fn, nil, WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background()) // must not panic on double close
}

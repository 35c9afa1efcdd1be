package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/cache"
	"ricorrenti/internal/core"
	"ricorrenti/internal/detect"
	"ricorrenti/internal/ledger"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
	delay       time.Duration
	report      *core.Report
	err         error
}

func (r *fakeRunner) Run(ctx context.Context) (*core.Report, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		old := r.maxInFlight.Load()
		if n <= old || r.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.report, r.err
}

func TestAnalysisWorker_RunOnceNeverOverlaps(t *testing.T) {
	runner := &fakeRunner{delay: 5 * time.Millisecond, report: &core.Report{RunID: "r"}}
	w := NewAnalysisWorker(runner, 0, quietLogger())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.RunOnce(context.Background(), "test"); err != nil {
				t.Errorf("RunOnce() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := runner.maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1", got)
	}
	if got := w.Runs(); got != 8 {
		t.Errorf("Runs() = %d, want 8", got)
	}
}

func TestAnalysisWorker_RunOnceErrors(t *testing.T) {
	tests := []struct {
		name    string
		report  *core.Report
		err     error
		wantErr bool
	}{
		{name: "success", report: &core.Report{RunID: "ok"}},
		{name: "run failed", err: errors.New("source unavailable"), wantErr: true},
		{name: "sink failed after run", report: &core.Report{RunID: "partial"}, err: errors.New("sink down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewAnalysisWorker(&fakeRunner{report: tt.report, err: tt.err}, 0, quietLogger())
			err := w.RunOnce(context.Background(), "test")
			if (err != nil) != tt.wantErr {
				t.Errorf("RunOnce() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnalysisWorker_RunOnceCancelled(t *testing.T) {
	runner := &fakeRunner{report: &core.Report{}}
	w := NewAnalysisWorker(runner, 0, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.RunOnce(ctx, "test"); !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce() error = %v, want context.Canceled", err)
	}
	if runner.calls.Load() != 0 {
		t.Error("runner called with a cancelled context")
	}
}

func TestAnalysisWorker_HandleAnalysisRequest(t *testing.T) {
	runner := &fakeRunner{report: &core.Report{RunID: "r"}}
	w := NewAnalysisWorker(runner, 0, quietLogger())

	msg := amqp.NewAnalysisRequestMessage("")
	if err := w.HandleAnalysisRequest(context.Background(), msg); err != nil {
		t.Fatalf("HandleAnalysisRequest() error = %v", err)
	}
	if runner.calls.Load() != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls.Load())
	}

	runner.err = errors.New("boom")
	runner.report = nil
	if err := w.HandleAnalysisRequest(context.Background(), msg); err == nil {
		t.Error("HandleAnalysisRequest() error = nil, want failure so the message is requeued")
	}
}

func TestAnalysisWorker_HandleAnalysisRequestFailurePolicy(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantPermanent bool
	}{
		{"invalid stored transaction", fmt.Errorf("analyze: %w", detect.ErrInvalidTransaction), true},
		{"missing ledger column", fmt.Errorf("read ledger: %w", ledger.ErrMissingColumn), true},
		{"missing ledger file", fmt.Errorf("open ledger: %w", fs.ErrNotExist), true},
		{"database busy", errors.New("database is locked"), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewAnalysisWorker(&fakeRunner{err: tt.err}, 0, quietLogger())
			err := w.HandleAnalysisRequest(context.Background(), amqp.NewAnalysisRequestMessage("manual"))
			if err == nil {
				t.Fatal("HandleAnalysisRequest() error = nil")
			}
			if got := errors.Is(err, amqp.ErrPermanent); got != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v (err=%v)", got, tt.wantPermanent, err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("error %v does not wrap %v", err, tt.err)
			}
		})
	}
}

func TestAnalysisWorker_StartStop(t *testing.T) {
	runner := &fakeRunner{report: &core.Report{RunID: "r"}}
	w := NewAnalysisWorker(runner, 5*time.Millisecond, quietLogger())
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start() error = nil, want already running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runner.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runner.calls.Load() < 3 {
		t.Fatalf("got %d runs, want startup plus scheduled runs", runner.calls.Load())
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	calls := runner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if runner.calls.Load() != calls {
		t.Error("runs continued after Stop")
	}
}

func TestAnalysisWorker_StopsOnContextCancel(t *testing.T) {
	runner := &fakeRunner{report: &core.Report{}}
	w := NewAnalysisWorker(runner, 0, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	select {
	case <-w.doneCh:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after context cancellation")
	}
}

func TestNewCachedAnalyzer(t *testing.T) {
	txs := []core.Transaction{
		{Date: core.NewDate(2024, 1, 1), Description: "NETFLIX.COM", Amount: core.Money{Cents: 1549}},
		{Date: core.NewDate(2024, 2, 1), Description: "NETFLIX.COM1", Amount: core.Money{Cents: 1549}},
		{Date: core.NewDate(2024, 3, 1), Description: "NETFLIX.COM", Amount: core.Money{Cents: 1549}},
	}

	t.Run("fuzzy uses the shared cache", func(t *testing.T) {
		manager := cache.NewManager(quietLogger())
		a, scores, err := NewCachedAnalyzer(detect.DefaultConfig(), manager, 100, time.Hour, quietLogger())
		if err != nil {
			t.Fatalf("NewCachedAnalyzer() error = %v", err)
		}
		if scores == nil {
			t.Fatal("score cache = nil for fuzzy matching")
		}
		res, err := a.Analyze(txs)
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if len(res.Groups) != 1 {
			t.Fatalf("got %d groups, want 1", len(res.Groups))
		}
		if scores.Size() == 0 {
			t.Error("no scores were cached")
		}
		if _, err := a.Analyze(txs); err != nil {
			t.Fatalf("second Analyze() error = %v", err)
		}
		if scores.Stats().Hits == 0 {
			t.Error("second run did not hit the score cache")
		}
	})

	t.Run("exact matching has no cache", func(t *testing.T) {
		cfg := detect.DefaultConfig()
		cfg.FuzzyMatching = false
		a, scores, err := NewCachedAnalyzer(cfg, nil, 100, time.Hour, quietLogger())
		if err != nil {
			t.Fatalf("NewCachedAnalyzer() error = %v", err)
		}
		if scores != nil {
			t.Error("score cache created for exact matching")
		}
		if a.Mode() != core.MatchExact {
			t.Errorf("Mode() = %s, want exact", a.Mode())
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := detect.DefaultConfig()
		cfg.MinCount = 0
		if _, _, err := NewCachedAnalyzer(cfg, nil, 100, time.Hour, quietLogger()); err == nil {
			t.Error("NewCachedAnalyzer() error = nil, want validation failure")
		}
	})
}

package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bantai/bantai-service/internal/domain"
)

// fakeProcessor is a simple test double for queueProcessor.
type fakeProcessor struct {
	mu              sync.Mutex
	resultsToReturn []domain.SendResult
	errToReturn     error
	calls           int
}

func (f *fakeProcessor) ProcessQueue(ctx context.Context) ([]domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.resultsToReturn, f.errToReturn
}

func TestScheduler_RunOnce_MixedResults(t *testing.T) {
	processor := &fakeProcessor{
		resultsToReturn: []domain.SendResult{
			{Success: true},
			{Success: false},
			{Success: true},
		},
	}
	s := NewScheduler(processor, time.Minute).WithAlerts("", 3)

	s.RunOnce(context.Background())

	status := s.GetStatus()
	if status.MessagesSent != 2 {
		t.Errorf("expected MessagesSent=2, got %d", status.MessagesSent)
	}
	if status.RunsCount != 1 {
		t.Errorf("expected RunsCount=1, got %d", status.RunsCount)
	}
	if status.ConsecutiveAllFailCount != 0 {
		t.Errorf("expected ConsecutiveAllFailCount=0, got %d", status.ConsecutiveAllFailCount)
	}
	if processor.calls != 1 {
		t.Fatalf("expected 1 call to ProcessQueue, got %d", processor.calls)
	}
}

func TestScheduler_RunOnce_AllFailIncrementsCounter(t *testing.T) {
	processor := &fakeProcessor{
		resultsToReturn: []domain.SendResult{{Success: false}, {Success: false}},
	}
	s := NewScheduler(processor, time.Minute).WithAlerts("", 5)

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	status := s.GetStatus()
	if status.MessagesSent != 0 {
		t.Errorf("expected MessagesSent=0, got %d", status.MessagesSent)
	}
	if status.ConsecutiveAllFailCount != 2 {
		t.Errorf("expected ConsecutiveAllFailCount=2, got %d", status.ConsecutiveAllFailCount)
	}

	processor.resultsToReturn = nil
	s.RunOnce(context.Background())
	if got := s.GetStatus().ConsecutiveAllFailCount; got != 2 {
		t.Errorf("an empty queue must not reset the counter, got %d", got)
	}
}

func TestScheduler_AlertsAfterThreshold(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	processor := &fakeProcessor{resultsToReturn: []domain.SendResult{{Success: false}}}
	s := NewScheduler(processor, time.Minute).WithAlerts(server.URL, 2)

	s.RunOnce(context.Background())
	time.Sleep(50 * time.Millisecond)
	if hits.Load() != 0 {
		t.Fatalf("alert sent before threshold")
	}

	s.RunOnce(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one alert, got %d", hits.Load())
	}
}

func TestScheduler_RunOnce_RunsTasksEvenWhenQueueFails(t *testing.T) {
	processor := &fakeProcessor{errToReturn: errors.New("db down")}

	var ran []string
	tasks := []Task{
		{Name: "first", Run: func(ctx context.Context) (int64, error) {
			ran = append(ran, "first")
			return 0, errors.New("boom")
		}},
		{Name: "second", Run: func(ctx context.Context) (int64, error) {
			ran = append(ran, "second")
			return 3, nil
		}},
	}
	s := NewScheduler(processor, time.Minute, tasks...)

	s.RunOnce(context.Background())

	if len(ran) != 2 || ran[0] != "first" || ran[1] != "second" {
		t.Fatalf("expected both tasks to run in order, got %v", ran)
	}
	if s.GetStatus().RunsCount != 1 {
		t.Errorf("expected RunsCount=1")
	}
}

func TestScheduler_StartAndStopToggleRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(&fakeProcessor{}, 10*time.Millisecond)

	if s.IsRunning() {
		t.Fatalf("expected scheduler to be not running initially")
	}

	if err := s.StartWithInterval(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if !s.IsRunning() {
		t.Fatalf("expected scheduler to be running after Start")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	if s.IsRunning() {
		t.Fatalf("expected scheduler to be not running after Stop")
	}
}

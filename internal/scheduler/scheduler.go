package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/pkg/logger"
)

// queueProcessor matches the ProcessQueue method of the SMS service and lets
// the scheduler be tested with a small fake.
type queueProcessor interface {
	ProcessQueue(ctx context.Context) ([]domain.SendResult, error)
}

// Task is a housekeeping job run after each queue pass. Run reports how many
// records it touched.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

type Scheduler struct {
	smsService      queueProcessor
	tasks           []Task
	interval        time.Duration
	alertWebhook    string
	alertThreshold  int // consecutive all-failed runs before alerting
	alertClient     *resty.Client
	lastAlertSentAt time.Time

	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	lastRunAt    time.Time
	messagesSent int64
	runsCount    int64

	consecutiveAllFailCount int
}

func NewScheduler(smsService queueProcessor, interval time.Duration, tasks ...Task) *Scheduler {
	return &Scheduler{
		smsService:  smsService,
		tasks:       tasks,
		interval:    interval,
		alertClient: resty.New().SetTimeout(5 * time.Second),
	}
}

// WithAlerts posts to webhookURL once threshold consecutive runs had every
// send fail. A zero threshold or empty URL disables alerts.
func (s *Scheduler) WithAlerts(webhookURL string, threshold int) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alertWebhook = webhookURL
	s.alertThreshold = threshold
	return s
}

func (s *Scheduler) StartWithInterval(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	s.mu.Lock()
	s.interval = interval
	s.consecutiveAllFailCount = 0
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	interval := s.interval
	s.mu.Unlock()

	logger.Infof("Starting scheduler with interval: %v", interval)

	go s.run(ctx, interval)

	return nil
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration) {
	defer close(s.doneChan)

	s.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infof("Scheduler running. Next execution in %v", interval)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
			logger.Debugf("Next execution in %v", interval)

		case <-s.stopChan:
			logger.Warnf("Scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Scheduler context cancelled")
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
	}
}

// RunOnce processes the SMS queue and then the housekeeping tasks.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.processQueue(ctx)

	for _, task := range s.tasks {
		n, err := task.Run(ctx)
		if err != nil {
			logger.Errorf("Housekeeping task %s failed: %v", task.Name, err)
			continue
		}
		if n > 0 {
			logger.Infof("Housekeeping task %s removed or updated %d records", task.Name, n)
		}
	}
}

func (s *Scheduler) processQueue(ctx context.Context) {
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	startedAt := s.lastRunAt
	s.mu.Unlock()

	logger.Infof("[Run #%d] Starting queue processing at %s", runNumber, startedAt.Format(time.RFC3339))

	results, err := s.smsService.ProcessQueue(ctx)
	if err != nil {
		logger.Errorf("[Run #%d] Error processing queue: %v", runNumber, err)
		return
	}

	if len(results) == 0 {
		logger.Debugf("[Run #%d] No messages to process", runNumber)
		return
	}

	successCount := 0
	for _, r := range results {
		if r.Success {
			successCount++
		}
	}

	s.mu.Lock()
	s.messagesSent += int64(successCount)

	if successCount == 0 {
		s.consecutiveAllFailCount++
		logger.Warnf("[Run #%d] All %d messages failed (consecutive count: %d/%d)",
			runNumber, len(results), s.consecutiveAllFailCount, s.alertThreshold)

		if s.alertThreshold > 0 && s.alertWebhook != "" && s.consecutiveAllFailCount >= s.alertThreshold {
			go s.sendAlert(s.alertWebhook, runNumber, s.consecutiveAllFailCount, len(results))
		}
	} else {
		if s.consecutiveAllFailCount > 0 {
			logger.Debugf("[Run #%d] Resetting consecutive failure count (was: %d)", runNumber, s.consecutiveAllFailCount)
		}
		s.consecutiveAllFailCount = 0
	}
	s.mu.Unlock()

	logger.Infof("[Run #%d] Processed %d messages, %d successful, %d failed",
		runNumber, len(results), successCount, len(results)-successCount)
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	close(stopChan)
	<-doneChan

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Tasks returns the housekeeping jobs in run order.
func (s *Scheduler) Tasks() []Task {
	return append([]Task(nil), s.tasks...)
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:                 s.running,
		LastRunAt:               s.lastRunAt,
		MessagesSent:            s.messagesSent,
		RunsCount:               s.runsCount,
		Interval:                s.interval.String(),
		ConsecutiveAllFailCount: s.consecutiveAllFailCount,
		LastAlertSentAt:         s.lastAlertSentAt,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

func (s *Scheduler) sendAlert(webhookURL string, runNumber int64, consecutiveFailures int, messagesInBatch int) {
	payload := map[string]any{
		"alert":               "consecutive_all_fail",
		"runNumber":           runNumber,
		"consecutiveFailures": consecutiveFailures,
		"messagesInBatch":     messagesInBatch,
		"timestamp":           time.Now().Format(time.RFC3339),
		"message": fmt.Sprintf(
			"All %d SMS messages failed for %d consecutive runs",
			messagesInBatch,
			consecutiveFailures,
		),
	}

	resp, err := s.alertClient.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(webhookURL)
	if err != nil {
		logger.Errorf("Failed to send alert to webhook: %v", err)
		return
	}

	if resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusNoContent {
		s.mu.Lock()
		s.lastAlertSentAt = time.Now()
		s.mu.Unlock()
		logger.Infof("Alert sent to %s (consecutive failures: %d)", webhookURL, consecutiveFailures)
	} else {
		logger.Warnf("Alert webhook returned status %d", resp.StatusCode())
	}
}

type SchedulerStatus struct {
	Running                 bool      `json:"running"`
	LastRunAt               time.Time `json:"lastRunAt,omitempty"`
	NextRunAt               time.Time `json:"nextRunAt,omitempty"`
	MessagesSent            int64     `json:"messagesSent"`
	RunsCount               int64     `json:"runsCount"`
	Interval                string    `json:"interval"`
	ConsecutiveAllFailCount int       `json:"consecutiveAllFailCount"`
	LastAlertSentAt         time.Time `json:"lastAlertSentAt,omitempty"`
}

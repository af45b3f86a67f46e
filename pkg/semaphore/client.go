package semaphore

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/pkg/logger"
)

// Message is one entry of the carrier's message API responses.
type Message struct {
	MessageID  int64  `json:"message_id"`
	Recipient  string `json:"recipient"`
	Message    string `json:"message"`
	SenderName string `json:"sender_name"`
	Network    string `json:"network"`
	Status     string `json:"status"`
}

type Client struct {
	httpClient *resty.Client
	baseURL    string
	apiKey     string
	senderName string
}

func NewClient(cfg environments.SemaphoreConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		senderName: cfg.SenderName,
	}
}

// SendMessage submits one SMS. Priority messages skip the carrier's queue and
// are used for time-sensitive codes.
func (c *Client) SendMessage(ctx context.Context, number, content string, priority bool) (*Message, error) {
	endpoint := c.baseURL + "/messages"
	if priority {
		endpoint = c.baseURL + "/priority"
	}

	form := map[string]string{
		"apikey":  c.apiKey,
		"number":  number,
		"message": content,
	}
	if c.senderName != "" {
		form["sendername"] = c.senderName
	}

	var messages []Message

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&messages).
		Post(endpoint)

	duration := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	logger.Infof("Carrier request to %s completed in %v (status: %d)", endpoint, duration, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d (expected 200), body: %s", resp.StatusCode(), resp.String())
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("carrier returned no message, body: %s", resp.String())
	}

	msg := messages[0]
	if strings.EqualFold(msg.Status, "failed") {
		return &msg, fmt.Errorf("carrier rejected message %d", msg.MessageID)
	}

	return &msg, nil
}

// GetMessage fetches the current state of a previously sent message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	if _, err := strconv.ParseInt(messageID, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid carrier message id %q", messageID)
	}

	var messages []Message

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("apikey", c.apiKey).
		SetResult(&messages).
		Get(c.baseURL + "/messages/" + messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d (expected 200), body: %s", resp.StatusCode(), resp.String())
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("carrier has no message %s", messageID)
	}

	return &messages[0], nil
}

func (c *Client) GetURL() string {
	return c.baseURL
}

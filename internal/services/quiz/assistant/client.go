// Package assistant talks to the OpenAI Assistants API: it creates threads,
// posts respondent messages, runs the configured assistant and returns the
// assistant's latest text reply.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"github.com/louisbranch/workprint/internal/platform/timeouts"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Run statuses that end polling.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

var errRunPending = errors.New("run still in progress")

var tracer = otel.Tracer("github.com/louisbranch/workprint/internal/services/quiz/assistant")

// Config configures the Assistants API client.
type Config struct {
	APIKey      string
	AssistantID string
	BaseURL     string
	HTTPClient  *http.Client
	// RunTimeout bounds the wait for one run to finish.
	RunTimeout time.Duration
	// PollInterval is the first wait between run status polls.
	PollInterval time.Duration
	// MaxPollInterval caps the exponential poll interval.
	MaxPollInterval time.Duration
}

// Run is the subset of an assistant run the relay uses.
type Run struct {
	ID     string
	Status string
}

// Client calls the Assistants API over HTTP.
type Client struct {
	cfg Config
}

// NewClient builds a client, filling unset durations and endpoints.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: timeouts.AssistantRequest}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = timeouts.AssistantRun
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = timeouts.AssistantPoll
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = 5 * time.Second
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = cfg.PollInterval
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.AssistantID = strings.TrimSpace(cfg.AssistantID)
	return &Client{cfg: cfg}
}

// Configured reports whether credentials and an assistant id are set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != "" && c.cfg.AssistantID != ""
}

// CreateThread creates an empty thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/threads", map[string]any{})
	if err != nil {
		return "", err
	}
	threadID := gjson.GetBytes(body, "id").String()
	if threadID == "" {
		return "", apperrors.New(apperrors.CodeBackendUnavailable, "thread response missing id")
	}
	return threadID, nil
}

// AddMessage appends a user message to a thread.
func (c *Client) AddMessage(ctx context.Context, threadID string, content string) error {
	_, err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", map[string]any{
		"role":    "user",
		"content": content,
	})
	return err
}

// StartRun starts the configured assistant on a thread. Instructions, when
// set, are appended to the assistant's own for this run only.
func (c *Client) StartRun(ctx context.Context, threadID string, instructions string) (Run, error) {
	payload := map[string]any{"assistant_id": c.cfg.AssistantID}
	if strings.TrimSpace(instructions) != "" {
		payload["additional_instructions"] = instructions
	}
	body, err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", payload)
	if err != nil {
		return Run{}, err
	}
	return parseRun(body), nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID string, runID string) (Run, error) {
	body, err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/runs/"+url.PathEscape(runID), nil)
	if err != nil {
		return Run{}, err
	}
	return parseRun(body), nil
}

// WaitRun polls a run with exponential backoff until it reaches a terminal
// status or the run budget is spent.
func (c *Client) WaitRun(ctx context.Context, threadID string, run Run) (Run, error) {
	if isTerminal(run.Status) {
		return run, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.PollInterval
	policy.MaxInterval = c.cfg.MaxPollInterval
	policy.Multiplier = 1.5
	policy.RandomizationFactor = 0.1

	latest, err := backoff.Retry(ctx, func() (Run, error) {
		current, err := c.GetRun(ctx, threadID, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				return current, err
			}
			return current, backoff.Permanent(err)
		}
		if !isTerminal(current.Status) {
			return current, errRunPending
		}
		return current, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(c.cfg.RunTimeout),
	)
	if err != nil {
		if errors.Is(err, errRunPending) || errors.Is(err, context.DeadlineExceeded) {
			return latest, apperrors.Wrap(apperrors.CodeBackendTimeout, "run polling timeout", err)
		}
		return latest, err
	}
	return latest, nil
}

// LatestText returns the first text part of the newest thread message, and
// false when the message has no text.
func (c *Client) LatestText(ctx context.Context, threadID string) (string, bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages?limit=1", nil)
	if err != nil {
		return "", false, err
	}
	text := gjson.GetBytes(body, `data.0.content.#(type=="text").text.value`).String()
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

// Reply posts message to the thread, runs the assistant and returns its
// newest text, or "" when it produced none.
func (c *Client) Reply(ctx context.Context, threadID string, message string, instructions string) (string, error) {
	ctx, span := tracer.Start(ctx, "assistant.Reply", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("assistant.thread_id", threadID))

	text, err := c.reply(ctx, threadID, message, instructions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assistant reply failed")
	}
	return text, err
}

func (c *Client) reply(ctx context.Context, threadID string, message string, instructions string) (string, error) {
	if !c.Configured() {
		return "", apperrors.New(apperrors.CodeBackendUnavailable, "assistant is not configured")
	}
	if err := c.AddMessage(ctx, threadID, message); err != nil {
		return "", err
	}
	run, err := c.StartRun(ctx, threadID, instructions)
	if err != nil {
		return "", err
	}
	run, err = c.WaitRun(ctx, threadID, run)
	if err != nil {
		return "", err
	}
	if run.Status != StatusCompleted {
		return "", apperrors.WithMetadata(apperrors.CodeBackendRunFailed,
			"Run ended with status: "+run.Status,
			map[string]string{"status": run.Status})
	}
	text, _, err := c.LatestText(ctx, threadID)
	return text, err
}

func (c *Client) do(ctx context.Context, method string, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBackendUnavailable, "OpenAI request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = http.StatusText(res.StatusCode)
		}
		return nil, apperrors.WithMetadata(apperrors.CodeBackendUnavailable,
			fmt.Sprintf("OpenAI %d: %s", res.StatusCode, detail),
			map[string]string{"status": fmt.Sprint(res.StatusCode)})
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBackendUnavailable, "read OpenAI response", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, apperrors.New(apperrors.CodeBackendUnavailable, "OpenAI response is not valid JSON")
	}
	return body, nil
}

func parseRun(body []byte) Run {
	result := gjson.ParseBytes(body)
	return Run{ID: result.Get("id").String(), Status: result.Get("status").String()}
}

func isTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

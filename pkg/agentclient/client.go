package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/sameehj/agenteval/pkg/completion"
	"github.com/sameehj/agenteval/pkg/logging"
	"github.com/sameehj/agenteval/pkg/metrics"
	"github.com/sameehj/agenteval/pkg/version"
)

const (
	DefaultURL          = "http://localhost:3000/agent/transcript/question"
	DefaultUserID       = "1"
	DefaultTranscriptID = "1"

	EnvURL          = "AGENT_URL"
	EnvUserID       = "AGENT_USER_ID"
	EnvTranscriptID = "TRANSCRIPT_ID"
)

// ErrMalformedResponse is returned when a successful response is not a JSON object.
var ErrMalformedResponse = errors.New("malformed agent response")

// StatusError reports a non-2xx reply from the agent service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent service returned status %d: %s", e.StatusCode, e.Body)
}

// QuestionRequest is the JSON body posted to the agent service.
type QuestionRequest struct {
	UserID       string `json:"user_id"`
	TranscriptID string `json:"transcript_id"`
	Question     string `json:"question"`
}

// Options holds explicit construction values. Empty fields fall back to the
// environment and then to the package defaults.
type Options struct {
	URL          string
	UserID       string
	TranscriptID string
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(rec metrics.Recorder) ClientOption {
	return func(c *Client) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

// Client posts harness questions to the agent service. Its configuration is
// fixed at construction, so a Client may be shared between goroutines.
type Client struct {
	url          string
	userID       string
	transcriptID string

	http    *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

var _ completion.Fn = (*Client)(nil)

func New(opts Options, extra ...ClientOption) *Client {
	c := &Client{
		url:          resolve(opts.URL, EnvURL, DefaultURL),
		userID:       resolve(opts.UserID, EnvUserID, DefaultUserID),
		transcriptID: resolve(opts.TranscriptID, EnvTranscriptID, DefaultTranscriptID),
		http:         &http.Client{},
		logger:       logging.Discard(),
		metrics:      metrics.Noop{},
	}
	for _, opt := range extra {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewCompletionFn returns an adapter configured from the environment.
func NewCompletionFn() completion.Fn {
	return New(Options{})
}

func resolve(explicit, envKey, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := os.LookupEnv(envKey); ok {
		return v
	}
	return fallback
}

func (c *Client) URL() string          { return c.url }
func (c *Client) UserID() string       { return c.userID }
func (c *Client) TranscriptID() string { return c.transcriptID }

// Ask sends question with no generation options.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	return c.Complete(ctx, question)
}

// Complete posts prompt to the agent service and returns its answer field.
// Generation options are accepted for harness compatibility and ignored.
func (c *Client) Complete(ctx context.Context, prompt string, _ ...completion.Option) (string, error) {
	start := time.Now()
	answer, outcome, err := c.post(ctx, prompt)
	c.metrics.ObserveQuestion(outcome, time.Since(start).Seconds())
	return answer, err
}

func (c *Client) post(ctx context.Context, question string) (string, string, error) {
	body, err := json.Marshal(QuestionRequest{
		UserID:       c.userID,
		TranscriptID: c.transcriptID,
		Question:     question,
	})
	if err != nil {
		return "", metrics.OutcomeTransport, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", metrics.OutcomeTransport, fmt.Errorf("build agent request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "agenteval/"+version.Version)
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("agent question", "url", c.url, "request_id", requestID, "user_id", c.userID, "transcript_id", c.transcriptID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", metrics.OutcomeTransport, fmt.Errorf("call agent service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", metrics.OutcomeTransport, fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("agent error", "request_id", requestID, "status", resp.StatusCode)
		return "", metrics.OutcomeHTTPError, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if !gjson.ValidBytes(data) {
		return "", metrics.OutcomeMalformed, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return "", metrics.OutcomeMalformed, fmt.Errorf("%w: expected object, got %s", ErrMalformedResponse, parsed.Type)
	}
	answer, found := lastField(parsed, "answer")
	c.logger.Debug("agent answer", "request_id", requestID, "status", resp.StatusCode, "has_answer", found)
	if !found {
		return "", metrics.OutcomeOK, nil
	}
	return answer.String(), metrics.OutcomeOK, nil
}

// lastField returns the last value stored under key, so duplicate keys resolve
// the way encoding/json and most decoders do.
func lastField(obj gjson.Result, key string) (gjson.Result, bool) {
	var out gjson.Result
	found := false
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out, found = v, true
		}
		return true
	})
	return out, found
}

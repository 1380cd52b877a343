// Package twocaptcha implements the CaptchaSolver interface against a
// 2Captcha-style image-to-text JSON API: submit an image as a task, then poll
// the task id with bounded attempts until the recognized text is ready.
package twocaptcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/crab-wise/tryst-scraper/internal/repository"
)

const (
	createTaskPath    = "/createTask"
	getTaskResultPath = "/getTaskResult"
)

// Client submits ImageToTextTask jobs. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxPolls   int
	pollDelay  time.Duration
	firstWait  time.Duration
}

// New returns a solver client. maxPolls bounds result polling; pollDelay is
// the wait between polls.
func New(baseURL, apiKey string, maxPolls int, pollDelay time.Duration) *Client {
	if maxPolls <= 0 {
		maxPolls = 15
	}
	if pollDelay <= 0 {
		pollDelay = 3 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxPolls:   maxPolls,
		pollDelay:  pollDelay,
		firstWait:  5 * time.Second,
	}
}

type createTaskRequest struct {
	ClientKey    string    `json:"clientKey"`
	Task         imageTask `json:"task"`
	LanguagePool string    `json:"languagePool"`
}

type imageTask struct {
	Type      string `json:"type"`
	Body      string `json:"body"`
	Phrase    bool   `json:"phrase"`
	Case      bool   `json:"case"`
	Numeric   int    `json:"numeric"`
	Math      bool   `json:"math"`
	MinLength int    `json:"minLength"`
	MaxLength int    `json:"maxLength"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Text string `json:"text"`
	} `json:"solution"`
}

// SolveImage submits the challenge image and polls until the recognized text
// is ready. Returns ErrSolverTimeout when the bounded polling window expires.
func (c *Client) SolveImage(ctx context.Context, image []byte) (string, error) {
	taskID, err := c.createTask(ctx, image)
	if err != nil {
		return "", err
	}
	slog.Debug("Captcha task created", "task_id", taskID, "image_bytes", len(image))

	text, err := c.pollTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	slog.Info("Captcha solved", "task_id", taskID, "length", len(text))
	return text, nil
}

func (c *Client) createTask(ctx context.Context, image []byte) (int64, error) {
	payload := createTaskRequest{
		ClientKey: c.apiKey,
		Task: imageTask{
			Type:      "ImageToTextTask",
			Body:      base64.StdEncoding.EncodeToString(image),
			Case:      true,
			MinLength: 1,
			MaxLength: 8,
		},
		LanguagePool: "en",
	}

	var resp createTaskResponse
	if err := c.postJSON(ctx, createTaskPath, payload, &resp); err != nil {
		return 0, err
	}
	if resp.ErrorID > 0 {
		return 0, fmt.Errorf("solver rejected task: %s", resp.ErrorDescription)
	}
	if resp.TaskID == 0 {
		return 0, fmt.Errorf("solver returned no task id")
	}
	return resp.TaskID, nil
}

// pollTask waits for an external task to complete: an initial settle wait,
// then up to maxPolls checks with pollDelay between them.
func (c *Client) pollTask(ctx context.Context, taskID int64) (string, error) {
	if err := sleepCtx(ctx, c.firstWait); err != nil {
		return "", err
	}

	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		var resp taskResultResponse
		err := c.postJSON(ctx, getTaskResultPath, taskResultRequest{ClientKey: c.apiKey, TaskID: taskID}, &resp)
		switch {
		case err != nil:
			slog.Warn("Captcha result poll failed", "task_id", taskID, "attempt", attempt, "error", err)
		case resp.ErrorID > 0:
			return "", fmt.Errorf("solver task failed: %s", resp.ErrorDescription)
		case resp.Status == "ready":
			if resp.Solution.Text == "" {
				return "", fmt.Errorf("solver returned empty solution: %w", repository.ErrCaptchaUnsolved)
			}
			return resp.Solution.Text, nil
		}

		if attempt < c.maxPolls {
			if err := sleepCtx(ctx, c.pollDelay); err != nil {
				return "", err
			}
		}
	}
	return "", repository.ErrSolverTimeout
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal solver request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("solver request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solver returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode solver response: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
)

// Client is the HTTP implementation of Classifier.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

// NewClient creates a classification service client from the given configuration.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: cfg.TimeoutDuration()},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		logger:  logger.With("system", "classify"),
	}
}

func (c *Client) Classify(ctx context.Context, req Request) (*Outcome, error) {
	body, err := c.postJSON(ctx, "/classify", req)
	if err != nil {
		return nil, err
	}

	outcome, err := normalizeOutcome(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("classify response",
		"needs_clarification", outcome.NeedsClarification,
		"questions", len(outcome.Questions),
		"candidates", len(outcome.Candidates),
	)
	return outcome, nil
}

func (c *Client) StartBulk(ctx context.Context, req StartBulkRequest) (*BulkRunHandle, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	form.WriteField("user_id", req.UserID)
	form.WriteField("confidence_threshold", strconv.FormatFloat(req.Threshold, 'f', -1, 64))
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	body, err := c.post(ctx, "/bulk", form.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	var handle BulkRunHandle
	if err := json.Unmarshal(body, &handle); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if handle.RunID == "" {
		return nil, fmt.Errorf("%w: bulk start without run_id", ErrMalformed)
	}

	c.logger.Info("bulk run started",
		"run_id", handle.RunID,
		"total_items", handle.TotalItems,
	)
	return &handle, nil
}

func (c *Client) PollBulk(ctx context.Context, runID string) (*BulkRun, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bulk/"+runID, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	c.authorize(httpReq)

	body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	return normalizeBulkRun(body)
}

func (c *Client) ClarifyItem(ctx context.Context, runID, itemID string, answers []string) error {
	payload := struct {
		Answers []string `json:"clarification_answers"`
	}{Answers: answers}

	path := fmt.Sprintf("/bulk/%s/items/%s/clarify", runID, itemID)
	if _, err := c.postJSON(ctx, path, payload); err != nil {
		return err
	}
	return nil
}

func (c *Client) CancelBulk(ctx context.Context, runID string) (bool, error) {
	body, err := c.postJSON(ctx, "/bulk/"+runID+"/cancel", struct{}{})
	if err != nil {
		return false, err
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return resp.Success, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(data))
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	c.authorize(httpReq)

	return c.do(httpReq)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrService, servicePayload(resp.StatusCode, body))
	}

	return body, nil
}

// servicePayload extracts the service's error message when the payload carries
// one, falling back to the HTTP status.
func servicePayload(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return fmt.Sprintf("status %d", status)
}

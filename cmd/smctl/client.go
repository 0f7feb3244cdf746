package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bastiangx/streetmatch/internal/httpapi"
)

type client struct {
	baseURL string
	timeout time.Duration
}

// apiError carries the status and message of a non-2xx response.
type apiError struct {
	Status  int
	Message string
	// Result is set when feedback was applied but could not be saved.
	Result *httpapi.CompareResponse
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

func (c *client) compare(ctx context.Context, req httpapi.CompareRequest) (httpapi.CompareResponse, error) {
	var res httpapi.CompareResponse
	err := c.post(ctx, "/compare", req, &res)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Result != nil {
		res = *apiErr.Result
	}
	return res, err
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, reqJSON, out)
}

func (c *client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	url := strings.TrimRight(c.baseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpClient := &http.Client{Timeout: c.timeout}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError understands both the verdict-carrying error body and echo's
// {"message": ...} body.
func decodeError(status int, data []byte) error {
	var body struct {
		httpapi.ErrorResponse
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Error != "":
			msg = body.Error
		case body.Message != "":
			msg = body.Message
		}
	}
	return &apiError{Status: status, Message: msg, Result: body.Result}
}
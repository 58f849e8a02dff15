/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/reset"
	"github.com/carverauto/shepherd/pkg/snapshot"
)

const defaultClientTimeout = 2 * time.Minute

var errEmptyBaseURL = errors.New("api base url is required")

// APIError is a non-2xx response from the admin API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap maps the response code back onto the shared result-code errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "not_found":
		return models.ErrNotFound
	case e.Code == "conflict":
		return models.ErrConflict
	case e.Code == "port_busy":
		return models.ErrPortBusy
	case e.Code == "transient":
		return models.ErrTransient
	case strings.HasPrefix(e.Code, "tool_"):
		return models.ErrTool
	default:
		return nil
	}
}

// Client talks to a running shepherd admin API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, errEmptyBaseURL
	}

	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultClientTimeout},
	}, nil
}

func (c *Client) Onboard(ctx context.Context, req *models.OnboardRequest) (*models.KnownMiner, error) {
	var miner models.KnownMiner
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/miners/onboard", req, &miner); err != nil {
		return nil, err
	}

	return &miner, nil
}

// Reset returns the workflow result even when the workflow reported an
// error, so callers can show what was captured.
func (c *Client) Reset(ctx context.Context, req reset.Request) (*reset.Result, error) {
	var resp resetResponse

	raw, err := c.do(ctx, http.MethodPost, "/api/v1/devices/reset", req, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && len(raw) > 0 {
			var partial resetResponse
			if json.Unmarshal(raw, &partial) == nil && partial.Result != nil && partial.ResetID != "" {
				return partial.Result, err
			}
		}

		return nil, err
	}

	return resp.Result, nil
}

// EditMiner sends only the non-nil fields of edit.
func (c *Client) EditMiner(ctx context.Context, edit models.MinerEdit) (*models.KnownMiner, error) {
	var miner models.KnownMiner
	if _, err := c.do(ctx, http.MethodPut, minerPath(edit.ID), edit, &miner); err != nil {
		return nil, err
	}

	return &miner, nil
}

func (c *Client) DeleteMiner(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, minerPath(id), nil, nil)
	return err
}

func (c *Client) DismissStray(ctx context.Context, key models.DeviceKey) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/strays/dismiss",
		dismissRequest{PortPath: key.PortPath, Serial: key.Serial}, nil)

	return err
}

// ImportMiners uploads a miner inventory CSV and returns the row count the
// daemon applied.
func (c *Client) ImportMiners(ctx context.Context, csvData io.Reader) (int, error) {
	var resp importResponse
	if _, err := c.send(ctx, http.MethodPost, "/api/v1/miners/import", "text/csv", csvData, &resp); err != nil {
		return 0, err
	}

	return resp.Imported, nil
}

func minerPath(id int64) string {
	return "/api/v1/miners/" + strconv.FormatInt(id, 10)
}

func (c *Client) Devices(ctx context.Context) (*models.Snapshot, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/v1/devices", nil, nil)
	if err != nil {
		return nil, err
	}

	return snapshot.Decode(raw)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) ([]byte, error) {
	if body == nil {
		return c.send(ctx, method, path, "", nil, out)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return c.send(ctx, method, path, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) send(
	ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
			apiErr.Code = er.Code
		}

		return raw, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("decode response: %w", err)
		}
	}

	return raw, nil
}

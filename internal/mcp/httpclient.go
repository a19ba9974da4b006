package mcp

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

	"github.com/claude/eruna/internal/models"
	"github.com/claude/eruna/internal/session"
)

// HTTPClient implements DataSource by calling the eruna REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// sessions live on the server (possibly reached over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("httpclient: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("httpclient: %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func sessionPath(id string, parts ...string) string {
	return "/api/v1/sessions/" + strings.Join(append([]string{id}, parts...), "/")
}

func (c *HTTPClient) StartSession(ctx context.Context, routineID models.ID, id string) (*session.Session, error) {
	var s session.Session
	payload := map[string]string{"routineId": routineID.String(), "id": id}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", payload, &s); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("routine %s: %w", routineID, session.ErrUnknownRoutine)
		}
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var body struct {
		Session *session.Session `json:"session"`
	}
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &body); err != nil {
		return nil, err
	}
	return body.Session, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context) ([]*session.Session, error) {
	var out []*session.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UpdateDraft(ctx context.Context, id string, setIndex int, patch session.DraftPatch) (*ActionResult, error) {
	var res ActionResult
	if err := c.do(ctx, http.MethodPatch, sessionPath(id, "drafts", strconv.Itoa(setIndex)), patch, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Act(ctx context.Context, id string, action Action) (*ActionResult, error) {
	var res ActionResult
	if err := c.do(ctx, http.MethodPost, sessionPath(id, string(action)), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) FinishSession(ctx context.Context, id string) (*session.Result, error) {
	var res session.Result
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "finish"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ListWorkouts(ctx context.Context) ([]models.Workout, error) {
	var out []models.Workout
	if err := c.do(ctx, http.MethodGet, "/api/v1/workouts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

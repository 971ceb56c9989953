package backbeatsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Backbeat HTTP API client.
type Client struct {
	BaseURL     string
	GalaxyID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, galaxyID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		GalaxyID: galaxyID,
		Timeout:  10 * time.Second,
	}
}

// Slot is one computed posting date.
type Slot struct {
	Date     string `json:"date"`
	Week     int    `json:"week"`
	PostType string `json:"post_type"`
}

// Schedule wraps a schedule response.
type Schedule struct {
	GalaxyID string `json:"galaxy_id"`
	Slots    []Slot `json:"slots"`
	Saved    bool   `json:"saved"`
	Warning  string `json:"warning,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string  `json:"id"`
	GalaxyID   string  `json:"galaxy_id"`
	Category   string  `json:"category"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Date       string  `json:"date,omitempty"`
	Status     string  `json:"status"`
	PostStatus string  `json:"post_status,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// Deadlines are the backward-planned production dates.
type Deadlines struct {
	PostingDate       string   `json:"posting_date"`
	ShootDate         string   `json:"shoot_date"`
	EditDeadline      string   `json:"edit_deadline"`
	ShotListDeadline  string   `json:"shot_list_deadline"`
	TreatmentDeadline string   `json:"treatment_deadline"`
	Late              []string `json:"late,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Schedule computes the posting schedule, syncing calendar events when the
// caller is an administrator.
func (c *Client) Schedule(ctx context.Context, weeks int) (Schedule, error) {
	endpoint := c.galaxyPath("schedule")
	if weeks > 0 {
		endpoint = fmt.Sprintf("%s?weeks=%d", endpoint, weeks)
	}
	var resp Schedule
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Tasks lists the tasks visible to the caller.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.galaxyPath("tasks"), nil, &resp)
	return resp, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, taskType, date string) (Task, error) {
	body := map[string]any{
		"title": title,
		"type":  taskType,
		"date":  date,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.galaxyPath("tasks"), body, &resp)
	return resp, err
}

// AssignTask assigns a task, materializing default-* ids transparently.
func (c *Client) AssignTask(ctx context.Context, taskID, assigneeID string) (Task, error) {
	body := map[string]any{"assignee_id": assigneeID}
	var resp Task
	endpoint := c.galaxyPath(fmt.Sprintf("tasks/%s/assign", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CompleteTask marks a task completed.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	endpoint := c.galaxyPath(fmt.Sprintf("tasks/%s/complete", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Deadlines backward-plans production deadlines for a posting date.
func (c *Client) Deadlines(ctx context.Context, postingDate string) (Deadlines, error) {
	var resp Deadlines
	endpoint := fmt.Sprintf("%s?date=%s", c.galaxyPath("deadlines"), url.QueryEscape(postingDate))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) galaxyPath(p string) string {
	galaxy := url.PathEscape(c.GalaxyID)
	return fmt.Sprintf("v0/galaxies/%s/%s", galaxy, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package clowdersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Clowder HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL should include the
// API base path, e.g. "http://127.0.0.1:8090/v1".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Agent represents the API agent model.
type Agent struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	ExperienceYears  int     `json:"experience_years"`
	Breed            string  `json:"breed"`
	Salary           float64 `json:"salary"`
	CurrentMissionID *int64  `json:"current_mission_id,omitempty"`
}

// Target represents a mission target.
type Target struct {
	ID          int64  `json:"id"`
	MissionID   int64  `json:"mission_id"`
	Name        string `json:"name"`
	Country     string `json:"country"`
	Notes       string `json:"notes,omitempty"`
	IsCompleted bool   `json:"is_completed"`
}

// Mission represents a mission with its targets and assigned agents.
type Mission struct {
	ID             int64    `json:"id"`
	Description    string   `json:"description"`
	IsCompleted    bool     `json:"is_completed"`
	Targets        []Target `json:"targets"`
	AssignedAgents []Agent  `json:"assigned_agents"`
}

// TargetSpec describes a target supplied at mission creation.
type TargetSpec struct {
	Name        string `json:"name"`
	Country     string `json:"country"`
	Notes       string `json:"notes,omitempty"`
	IsCompleted bool   `json:"is_completed,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAgent creates an agent. The breed is validated server-side
// against the external catalog.
func (c *Client) CreateAgent(ctx context.Context, name string, experienceYears int, breed string, salary float64) (Agent, error) {
	body := map[string]any{
		"name":             name,
		"experience_years": experienceYears,
		"breed":            breed,
		"salary":           salary,
	}
	var resp Agent
	err := c.do(ctx, http.MethodPost, "agents", body, &resp)
	return resp, err
}

// ListAgents returns a page of agents in creation order.
func (c *Client) ListAgents(ctx context.Context, skip, limit int) ([]Agent, error) {
	var resp []Agent
	endpoint := fmt.Sprintf("agents?skip=%d&limit=%d", skip, limit)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetAgent fetches an agent by id.
func (c *Client) GetAgent(ctx context.Context, id int64) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("agents/%d", id), nil, &resp)
	return resp, err
}

// UpdateAgent replaces an agent's profile fields.
func (c *Client) UpdateAgent(ctx context.Context, id int64, name string, experienceYears int, breed string, salary float64) (Agent, error) {
	body := map[string]any{
		"name":             name,
		"experience_years": experienceYears,
		"breed":            breed,
		"salary":           salary,
	}
	var resp Agent
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("agents/%d", id), body, &resp)
	return resp, err
}

// DeleteAgent removes an agent.
func (c *Client) DeleteAgent(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("agents/%d", id), nil, nil)
}

// AssignMission gives an unassigned agent a mission.
func (c *Client) AssignMission(ctx context.Context, agentID, missionID int64) (Agent, error) {
	var resp Agent
	endpoint := fmt.Sprintf("agents/%d/assign_mission?mission_id=%d", agentID, missionID)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateMission creates a mission together with its targets.
func (c *Client) CreateMission(ctx context.Context, description string, targets []TargetSpec) (Mission, error) {
	if targets == nil {
		targets = []TargetSpec{}
	}
	body := map[string]any{
		"description": description,
		"targets":     targets,
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", body, &resp)
	return resp, err
}

// ListMissions returns a page of missions in creation order.
func (c *Client) ListMissions(ctx context.Context, skip, limit int) ([]Mission, error) {
	var resp []Mission
	endpoint := fmt.Sprintf("missions?skip=%d&limit=%d", skip, limit)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetMission fetches a mission by id.
func (c *Client) GetMission(ctx context.Context, id int64) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("missions/%d", id), nil, &resp)
	return resp, err
}

// UpdateMission overwrites a mission's description and completion flag.
func (c *Client) UpdateMission(ctx context.Context, id int64, description string, isCompleted bool) (Mission, error) {
	body := map[string]any{
		"description":  description,
		"is_completed": isCompleted,
	}
	var resp Mission
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("missions/%d", id), body, &resp)
	return resp, err
}

// DeleteMission removes a mission and its targets.
func (c *Client) DeleteMission(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("missions/%d", id), nil, nil)
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

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

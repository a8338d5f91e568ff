package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relayd-dev/relayd/internal/cli/userconfig"
)

// Client represents an HTTP client for the Relayd API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client
func New(serverURL string) *Client {
	baseURL := strings.TrimRight(serverURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// doJSON issues an authenticated request and decodes the JSON response
func (c *Client) doJSON(method, path string, reqBody, respBody interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := userconfig.LoadToken()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		IsAdmin bool   `json:"is_admin"`
	} `json:"user"`
}

// Login authenticates the user and returns a JWT token
func (c *Client) Login(email, password string) (*LoginResponse, error) {
	reqBody := LoginRequest{
		Email:    email,
		Password: password,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(
		fmt.Sprintf("%s/api/auth/login", c.baseURL),
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed (status %d): %s", resp.StatusCode, string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &loginResp, nil
}

// Conversation represents a chat thread returned by the API
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListConversations returns the caller's conversations
func (c *Client) ListConversations() ([]Conversation, error) {
	var conversations []Conversation
	if err := c.doJSON("GET", "/api/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// Run represents a pipeline run returned by the API
type Run struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Supervisor     string `json:"supervisor"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ListRuns returns recent pipeline runs
func (c *Client) ListRuns(status string) ([]Run, error) {
	path := "/api/runs"
	if status != "" {
		path += "?status=" + status
	}

	var runs []Run
	if err := c.doJSON("GET", path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// CostReport represents aggregated cost totals
type CostReport struct {
	TotalRuns       int64   `json:"total_runs"`
	TotalSteps      int64   `json:"total_steps"`
	TotalTokensIn   int64   `json:"total_tokens_in"`
	TotalTokensOut  int64   `json:"total_tokens_out"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	TotalSavingsUSD float64 `json:"total_savings_usd"`
	FallbackSteps   int64   `json:"fallback_steps"`
	ByAgent         []struct {
		AgentName  string  `json:"agent_name"`
		Steps      int64   `json:"steps"`
		TokensIn   int64   `json:"tokens_in"`
		TokensOut  int64   `json:"tokens_out"`
		CostUSD    float64 `json:"cost_usd"`
		SavingsUSD float64 `json:"savings_usd"`
	} `json:"by_agent"`
}

// GetCostReport returns the aggregated cost report
func (c *Client) GetCostReport() (*CostReport, error) {
	var report CostReport
	if err := c.doJSON("GET", "/api/costs/report", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

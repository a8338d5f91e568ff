package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relayd-dev/relayd/internal/cli/userconfig"
)

// mockAPIServer creates a mock API server for testing
func mockAPIServer(t *testing.T, email, password, expectedToken string, shouldFail bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			if r.Method != "POST" {
				t.Errorf("unexpected method: %s", r.Method)
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}

			var loginReq struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
				t.Errorf("failed to decode request: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			if shouldFail || loginReq.Email != email || loginReq.Password != password {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": "invalid credentials"}`))
				return
			}

			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"token": expectedToken,
				"user": map[string]interface{}{
					"id":       "user-123",
					"email":    loginReq.Email,
					"name":     "Test User",
					"is_admin": false,
				},
			})

		case "/api/conversations":
			if r.Header.Get("Authorization") != "Bearer "+expectedToken {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": "Unauthorized"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": "conv-1", "title": "First thread", "status": "active"},
			})

		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClientLogin(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mockServer := mockAPIServer(t, "test@example.com", "password123", "test-token-abc", false)
	defer mockServer.Close()

	apiClient := New(mockServer.URL)

	loginResp, err := apiClient.Login("test@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if loginResp.Token != "test-token-abc" {
		t.Errorf("Token = %q, want %q", loginResp.Token, "test-token-abc")
	}
	if loginResp.User.Email != "test@example.com" {
		t.Errorf("User.Email = %q, want %q", loginResp.User.Email, "test@example.com")
	}
}

func TestClientLoginRejected(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mockServer := mockAPIServer(t, "test@example.com", "password123", "test-token-abc", true)
	defer mockServer.Close()

	apiClient := New(mockServer.URL)

	if _, err := apiClient.Login("test@example.com", "wrong"); err == nil {
		t.Error("Login() expected error for rejected credentials")
	}
}

func TestClientListConversations(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mockServer := mockAPIServer(t, "test@example.com", "password123", "test-token-abc", false)
	defer mockServer.Close()

	if err := userconfig.SaveToken("test-token-abc"); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	apiClient := New(mockServer.URL)

	conversations, err := apiClient.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(conversations))
	}
	if conversations[0].Title != "First thread" {
		t.Errorf("Title = %q, want %q", conversations[0].Title, "First thread")
	}
}

func TestClientListConversationsNotLoggedIn(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mockServer := mockAPIServer(t, "test@example.com", "password123", "test-token-abc", false)
	defer mockServer.Close()

	apiClient := New(mockServer.URL)

	if _, err := apiClient.ListConversations(); err == nil {
		t.Error("ListConversations() expected error when not logged in")
	}
}

func TestClientBaseURLNormalization(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare host", "localhost:8080", "http://localhost:8080"},
		{"http url", "http://localhost:8080", "http://localhost:8080"},
		{"https url", "https://relayd.example.com", "https://relayd.example.com"},
		{"trailing slash", "http://localhost:8080/", "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.input)
			if c.baseURL != tt.expected {
				t.Errorf("baseURL = %q, want %q", c.baseURL, tt.expected)
			}
		})
	}
}

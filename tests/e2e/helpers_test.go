//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var userCounter int64

func uniqueUsername(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%1000000, atomic.AddInt64(&userCounter, 1))
}

func uniqueEmail(prefix string) string {
	return uniqueUsername(prefix) + "@example.com"
}

// TestClient wraps http.Client with cookie handling for a single user session
type TestClient struct {
	*http.Client
	t            *testing.T
	sessionToken string
	userID       string
	username     string
}

// NewTestClient creates a new test client with cookie jar
func NewTestClient(t *testing.T) *TestClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		t: t,
	}
}

// setupTestUser registers and logs in a fresh user, returning the client
func setupTestUser(t *testing.T, prefix string) *TestClient {
	t.Helper()

	client := NewTestClient(t)
	username := uniqueUsername(prefix)
	email := uniqueEmail(prefix)

	if _, err := client.RegisterUser(username, email, "password123"); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	if _, err := client.LoginUser(username, "password123"); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return client
}

// RegisterUser registers a new user and returns the response
func (tc *TestClient) RegisterUser(username, email, password string) (*UserResponse, error) {
	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}

	resp, err := tc.PostJSON("/api/v1/auth/register", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("register failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode register response: %w", err)
	}

	tc.userID = result.ID
	tc.username = result.Username
	return &result, nil
}

// LoginUser logs in and stores the session cookie
func (tc *TestClient) LoginUser(username, password string) (*LoginResponse, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	resp, err := tc.PostJSON("/api/v1/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			tc.sessionToken = c.Value
		}
	}
	if tc.sessionToken == "" {
		return nil, fmt.Errorf("login response did not set session cookie")
	}

	var result LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	tc.userID = result.User.ID
	tc.username = result.User.Username
	return &result, nil
}

// Logout logs out the current user
func (tc *TestClient) Logout() error {
	resp, err := tc.PostJSON("/api/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	tc.sessionToken = ""
	return nil
}

// GetMe returns the current user information
func (tc *TestClient) GetMe() (*UserResponse, error) {
	resp, err := tc.Get(baseURL + "/api/v1/auth/me")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get me failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode me response: %w", err)
	}
	return &result, nil
}

// GetHistory fetches the conversation with peer. before/beforeID form the
// keyset cursor: the sent_at and id of the oldest message already held.
func (tc *TestClient) GetHistory(peer string, limit int, before, beforeID string) (*HistoryResponse, error) {
	url := fmt.Sprintf("%s/api/v1/messages/%s", baseURL, peer)
	sep := "?"
	if limit > 0 {
		url = fmt.Sprintf("%s%slimit=%d", url, sep, limit)
		sep = "&"
	}
	if before != "" {
		url = fmt.Sprintf("%s%sbefore=%s", url, sep, before)
		sep = "&"
	}
	if beforeID != "" {
		url = fmt.Sprintf("%s%sbefore_id=%s", url, sep, beforeID)
	}

	resp, err := tc.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get history failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	return &result, nil
}

// PostJSON makes a POST request with JSON body
func (tc *TestClient) PostJSON(path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: tc.sessionToken})
	}
	return tc.Do(req)
}

// Get makes an authenticated GET request
func (tc *TestClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if tc.sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: tc.sessionToken})
	}
	return tc.Do(req)
}

// Response types mirroring the handler wire format

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}

type HistoryMessage struct {
	ID          string `json:"id"`
	RoomKey     string `json:"room_key"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	SentAt      string `json:"sent_at"`
}

type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
}

// WebSocket helpers

// WSClient is a connected chat socket for one test user
type WSClient struct {
	t        *testing.T
	conn     *websocket.Conn
	mu       sync.Mutex
	messages chan WSMessage
}

// WSMessage is the broadcast frame format
type WSMessage struct {
	Type        string `json:"type"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Message     string `json:"message"`
	ContentType string `json:"content_type"`
	Error       string `json:"error,omitempty"`
}

// ConnectWebSocket opens the chat socket authenticated by the session cookie
func (tc *TestClient) ConnectWebSocket() (*WSClient, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	header.Set("Cookie", "session_id="+tc.sessionToken)

	conn, _, err := dialer.Dial(wsURL+"/ws/chat", header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	wsc := &WSClient{
		t:        tc.t,
		conn:     conn,
		messages: make(chan WSMessage, 100),
	}
	go wsc.readLoop()

	return wsc, nil
}

func (wsc *WSClient) readLoop() {
	defer close(wsc.messages)

	for {
		_, data, err := wsc.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			wsc.t.Logf("failed to unmarshal WebSocket message: %v", err)
			continue
		}

		select {
		case wsc.messages <- msg:
		default:
			wsc.t.Log("message channel full, dropping message")
		}
	}
}

// SendDirect sends a direct message frame to recipient
func (wsc *WSClient) SendDirect(recipient, message string) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	return wsc.conn.WriteJSON(map[string]string{
		"recipient": recipient,
		"message":   message,
	})
}

// WaitForMessage waits for a frame matching the predicate
func (wsc *WSClient) WaitForMessage(timeout time.Duration, predicate func(WSMessage) bool) (*WSMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-wsc.messages:
			if !ok {
				return nil, fmt.Errorf("connection closed while waiting for message")
			}
			if predicate(msg) {
				return &msg, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("timed out waiting for message")
		}
	}
}

// ExpectNoMessage asserts that no frame arrives within the window
func (wsc *WSClient) ExpectNoMessage(window time.Duration) error {
	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case msg, ok := <-wsc.messages:
		if !ok {
			return nil
		}
		return fmt.Errorf("unexpected message: %+v", msg)
	case <-timer.C:
		return nil
	}
}

// Close closes the socket
func (wsc *WSClient) Close() {
	wsc.conn.Close()
}

func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

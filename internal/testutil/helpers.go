package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertErrorIs fails the test if err does not match the expected error
func AssertErrorIs(t *testing.T, err, expected error) {
	t.Helper()
	if !errors.Is(err, expected) {
		t.Errorf("expected error %v, got: %v", expected, err)
	}
}

// isNilable returns true if the reflect kind can be nil
func isNilable(kind reflect.Kind) bool {
	switch kind {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return true
	}
	return false
}

// AssertNil fails the test if v is not nil
func AssertNil(t *testing.T, v interface{}) {
	t.Helper()
	if v == nil {
		return
	}
	rv := reflect.ValueOf(v)
	if isNilable(rv.Kind()) && rv.IsNil() {
		return
	}
	t.Errorf("expected nil, got: %v", v)
}

// AssertNotNil fails the test if v is nil
func AssertNotNil(t *testing.T, v interface{}) {
	t.Helper()
	if v == nil {
		t.Fatal("expected non-nil value, got nil")
		return
	}
	rv := reflect.ValueOf(v)
	if isNilable(rv.Kind()) && rv.IsNil() {
		t.Fatal("expected non-nil value, got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("expected true: %s", msg)
	}
}

// AssertFalse fails the test if condition is true
func AssertFalse(t *testing.T, condition bool, msg string) {
	t.Helper()
	if condition {
		t.Errorf("expected false: %s", msg)
	}
}

// AssertContains fails if s does not contain substring
func AssertContains(t *testing.T, s, substring string) {
	t.Helper()
	if !strings.Contains(s, substring) {
		t.Errorf("expected %q to contain %q", s, substring)
	}
}

// HTTP Test Helpers

// AssertStatusCode fails if the response status code doesn't match expected
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSONResponse fails if the response is not valid JSON or status doesn't match
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// AssertHeader fails if the response header doesn't match the expected value
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	if got := w.Header().Get(key); got != expected {
		t.Errorf("expected header %s=%q, got %q", key, expected, got)
	}
}

// AssertCookie fails if the response does not set a cookie with the given name
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("expected cookie %q to be set", name)
	return nil
}

// NewJSONRequest builds a request with a JSON-encoded body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequestWithCookie builds a request carrying a single cookie
func NewRequestWithCookie(t *testing.T, method, url, cookieName, cookieValue string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookieValue})
	return req
}

// DecodeJSON decodes the response body into T
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// AssertLen fails if the slice does not have the expected length
func AssertLen[T any](t *testing.T, slice []T, expected int) {
	t.Helper()
	if len(slice) != expected {
		t.Errorf("expected length %d, got %d", expected, len(slice))
	}
}

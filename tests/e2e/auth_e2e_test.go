//go:build e2e
// +build e2e

package e2e

import (
	"net/http"
	"testing"
)

func TestAuth_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		client := NewTestClient(t)
		username := uniqueUsername("register")
		email := uniqueEmail("register")

		result, err := client.RegisterUser(username, email, "password123")
		assertNoError(t, err, "register should succeed")

		assertEqual(t, result.Username, username, "username should match")
		assertEqual(t, result.Email, email, "email should match")
		if result.ID == "" {
			t.Error("user ID should not be empty")
		}
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		client := NewTestClient(t)
		username := uniqueUsername("duplicate")

		_, err := client.RegisterUser(username, uniqueEmail("dup1"), "password123")
		assertNoError(t, err, "first registration should succeed")

		_, err = client.RegisterUser(username, uniqueEmail("dup2"), "password123")
		if err == nil {
			t.Error("duplicate username registration should fail")
		}
	})

	t.Run("invalid input rejected", func(t *testing.T) {
		client := NewTestClient(t)

		_, err := client.RegisterUser("ab", uniqueEmail("short"), "password123")
		if err == nil {
			t.Error("short username should be rejected")
		}

		_, err = client.RegisterUser(uniqueUsername("badpw"), uniqueEmail("badpw"), "short")
		if err == nil {
			t.Error("short password should be rejected")
		}
	})
}

func TestAuth_LoginFlow(t *testing.T) {
	client := NewTestClient(t)
	username := uniqueUsername("login")
	email := uniqueEmail("login")

	_, err := client.RegisterUser(username, email, "password123")
	assertNoError(t, err, "register should succeed")

	result, err := client.LoginUser(username, "password123")
	assertNoError(t, err, "login should succeed")
	assertEqual(t, result.User.Username, username, "login returns the user")

	me, err := client.GetMe()
	assertNoError(t, err, "me should succeed with session")
	assertEqual(t, me.Username, username, "me returns the session user")

	err = client.Logout()
	assertNoError(t, err, "logout should succeed")

	_, err = client.GetMe()
	if err == nil {
		t.Error("me should fail after logout")
	}
}

func TestAuth_WrongPassword(t *testing.T) {
	client := NewTestClient(t)
	username := uniqueUsername("wrongpw")

	_, err := client.RegisterUser(username, uniqueEmail("wrongpw"), "password123")
	assertNoError(t, err, "register should succeed")

	_, err = client.LoginUser(username, "not-the-password")
	if err == nil {
		t.Error("login with wrong password should fail")
	}
}

func TestAuth_ProtectedRoutesRequireSession(t *testing.T) {
	client := NewTestClient(t)

	resp, err := client.Get(baseURL + "/api/v1/auth/me")
	assertNoError(t, err, "request should complete")
	defer resp.Body.Close()
	assertEqual(t, resp.StatusCode, http.StatusUnauthorized, "me without session")

	resp2, err := client.Get(baseURL + "/api/v1/messages/somebody")
	assertNoError(t, err, "request should complete")
	defer resp2.Body.Close()
	assertEqual(t, resp2.StatusCode, http.StatusUnauthorized, "history without session")
}

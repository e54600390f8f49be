//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestAuthFlow(t *testing.T) {
	env := SetupTestEnv(t)

	email := "authflow@example.com"
	password := "supersecret1"

	result := RegisterUser(t, env, "authflow", email, password)
	data, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("register response missing data envelope: %v", result)
	}
	if data["access_token"] == "" || data["refresh_token"] == "" {
		t.Fatalf("register did not return a token pair: %v", data)
	}

	token := LoginUser(t, env, email, password)
	if token == "" {
		t.Fatal("login returned empty access token")
	}

	// Refresh with the register-time refresh token
	refreshToken := data["refresh_token"].(string)
	resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh", map[string]string{"refresh_token": refreshToken}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh failed: status %d", resp.StatusCode)
	}
	refreshed := ParseResponse(t, resp)
	newPair := refreshed["data"].(map[string]any)
	if newPair["access_token"] == "" {
		t.Fatal("refresh did not return a new access token")
	}

	// Logout invalidates the session for that token
	resp = DoRequest(t, env, "POST", "/api/v1/auth/logout", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout failed: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "dupe1", "dupe@example.com", "supersecret1")

	body := map[string]string{"username": "dupe2", "email": "dupe@example.com", "password": "supersecret1"}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", resp.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "wrongpw", "wrongpw@example.com", "supersecret1")

	body := map[string]string{"email": "wrongpw@example.com", "password": "not-the-password"}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "GET", "/api/v1/characters/", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

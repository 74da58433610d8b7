package routes

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	_, handler := newTestApp(t)

	resp := registerUser(t, handler, "Ada", "ada@example.com")
	assert.Equal(t, "Ada", resp.User.Name)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.RefreshToken)
}

func TestRegisterValidation(t *testing.T) {
	_, handler := newTestApp(t)
	registerUser(t, handler, "Ada", "ada@example.com")

	tests := []struct {
		name string
		body map[string]string
	}{
		{
			name: "missing name",
			body: map[string]string{"email": "bob@example.com", "password": "hunter22"},
		},
		{
			name: "missing email",
			body: map[string]string{"name": "Bob", "password": "hunter22"},
		},
		{
			name: "short password",
			body: map[string]string{"name": "Bob", "email": "bob@example.com", "password": "abc"},
		},
		{
			name: "duplicate email",
			body: map[string]string{"name": "Ada Again", "email": "ada@example.com", "password": "hunter22"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, handler, "POST", "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	_, handler := newTestApp(t)
	registerUser(t, handler, "Ada", "ada@example.com")

	t.Run("valid credentials", func(t *testing.T) {
		w := doRequest(t, handler, "POST", "/api/auth/login", "", map[string]string{
			"email":    "ada@example.com",
			"password": "hunter22",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeBody[tokenResponse](t, w)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "Ada", resp.User.Name)

		// the issued token opens gated routes
		w = doRequest(t, handler, "GET", "/api/surveys/my-surveys", resp.Token, nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("wrong password", func(t *testing.T) {
		w := doRequest(t, handler, "POST", "/api/auth/login", "", map[string]string{
			"email":    "ada@example.com",
			"password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := doRequest(t, handler, "POST", "/api/auth/login", "", map[string]string{
			"email":    "nobody@example.com",
			"password": "hunter22",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGatedRoutesRejectMissingToken(t *testing.T) {
	_, handler := newTestApp(t)

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/api/surveys"},
		{"GET", "/api/surveys/my-surveys"},
		{"DELETE", "/api/surveys/1"},
		{"GET", "/api/responses/survey/1"},
		{"GET", "/api/responses/analytics/1"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := doRequest(t, handler, tt.method, tt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

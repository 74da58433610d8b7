package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pulsehq/pulse-survey/app"
	"github.com/pulsehq/pulse-survey/config"
	"github.com/pulsehq/pulse-survey/database"
	"github.com/pulsehq/pulse-survey/httpx"
	"github.com/pulsehq/pulse-survey/model"
	"github.com/stretchr/testify/require"
)

var testDBSeq atomic.Int64

func itoa(n int) string {
	return strconv.Itoa(n)
}

// newTestApp opens a private in-memory database, runs the migrations through
// the regular database.Open path and wires the full router around it.
func newTestApp(t *testing.T) (app.App, http.Handler) {
	t.Helper()

	cfg := config.Config{
		Addr:        "localhost:0",
		DBUrl:       fmt.Sprintf("file:routes_test_%d?mode=memory&cache=shared", testDBSeq.Add(1)),
		TokenSecret: "test-secret",
		TokenTTL:    time.Hour,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := app.App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
	}
	return a, Wire(a)
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	if token != "" {
		req.Header.Set("authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

type tokenResponse struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`
}

func registerUser(t *testing.T, handler http.Handler, name, email string) tokenResponse {
	t.Helper()

	w := doRequest(t, handler, "POST", "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody[tokenResponse](t, w)
	require.NotEmpty(t, resp.Token)
	require.NotZero(t, resp.User.ID)
	return resp
}

func createSurvey(t *testing.T, handler http.Handler, token string, survey model.Survey) model.Survey {
	t.Helper()

	w := doRequest(t, handler, "POST", "/api/surveys", token, survey)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[model.Survey](t, w)
}

func submitResponse(t *testing.T, handler http.Handler, token string, response model.Response) model.Response {
	t.Helper()

	w := doRequest(t, handler, "POST", "/api/responses", token, response)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[model.Response](t, w)
}

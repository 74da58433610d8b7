package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/pulsehq/pulse-survey/app"
	"github.com/pulsehq/pulse-survey/httpx"
	"github.com/pulsehq/pulse-survey/log"
	"github.com/pulsehq/pulse-survey/model"
	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func Register(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds := credentials{}
		err := render.DecodeJSON(r.Body, &creds)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if creds.Name == "" || creds.Email == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "register.validate", "name and email are required")
			return
		}
		if len(creds.Password) < 6 {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "register.validate", "password must be at least 6 characters long")
			return
		}

		var exists bool
		err = app.QueryRowContext(r.Context(),
			"SELECT 1 FROM user WHERE email = ?", creds.Email,
		).Scan(&exists)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			httpx.LogInternalError(w, "db.get_user", err)
			return
		}
		if exists {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "register.duplicate", "user already exists")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
		if err != nil {
			httpx.LogInternalError(w, "register.hash", err)
			return
		}

		_, err = app.ExecContext(r.Context(), `
			INSERT INTO user (name, email, password_hash) VALUES (?, ?, ?)`,
			creds.Name,
			creds.Email,
			hash,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_user", err)
			return
		}

		issueToken(app, w, r, creds.Email, creds.Password)
	}
}

func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds := credentials{}
		err := render.DecodeJSON(r.Body, &creds)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		issueToken(app, w, r, creds.Email, creds.Password)
	}
}

// issueToken runs the password grant through the bearer server and unwraps
// the token response into the shape the client stores: token + profile.
func issueToken(app app.App, w http.ResponseWriter, r *http.Request, email, password string) {
	body := url.Values{
		"grant_type": {"password"},
		"username":   {email},
		"password":   {password},
	}
	req, err := http.NewRequest("POST", "/", strings.NewReader(body.Encode()))
	if err != nil {
		httpx.LogInternalError(w, "auth.token.new_request", err)
		return
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

	resp := httpx.NewResponseBuffer()
	app.UserCredentials(resp, req)
	if resp.Status() == http.StatusUnauthorized {
		httpx.LogStatusMsg(w, http.StatusUnauthorized, log.DebugLevel, "auth.token", "invalid credentials")
		return
	}
	if resp.Status() != http.StatusOK {
		httpx.LogStatus(w, resp.Status(), log.WarnLevel, "auth.token.status")
		return
	}

	var token map[string]any
	err = json.Unmarshal(resp.Body(), &token)
	if err != nil {
		httpx.LogInternalError(w, "auth.token.parse", err)
		return
	}

	user := model.User{}
	err = app.QueryRowContext(r.Context(),
		"SELECT id, name, email FROM user WHERE email = ?", email,
	).Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		httpx.LogInternalError(w, "db.get_user", err)
		return
	}

	render.JSON(w, r, map[string]any{
		"token":        token["access_token"],
		"refreshToken": token["refresh_token"],
		"expiresIn":    token["expires_in"],
		"user":         user,
	})
}

var reRefreshToken = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("authorization")
		match := reRefreshToken.FindStringSubmatch(auth)
		if len(match) == 0 {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}
		token := match[1]

		body := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {token},
		}

		req, err := http.NewRequest("POST", "/", strings.NewReader(body.Encode()))
		if err != nil {
			httpx.LogStatus(w, http.StatusInternalServerError, log.DebugLevel, "refresh.new_request")
			return
		}
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
		req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

		resp := httpx.NewResponseBuffer()
		app.UserCredentials(resp, req)
		resp.Flush(w)
	}
}

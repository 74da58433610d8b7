package httpx

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/oauth"
	"github.com/pulsehq/pulse-survey/config"
	"golang.org/x/crypto/bcrypt"
)

// NewBearerServer builds the OAuth bearer server that mints and refreshes
// tokens against the user/token tables.
func NewBearerServer(db *sql.DB, cfg config.Config) *oauth.BearerServer {
	return oauth.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, CredentialsVerifier(db), nil)
}

type credentialsVerifier struct {
	db *sql.DB
}

func CredentialsVerifier(db *sql.DB) oauth.CredentialsVerifier {
	return &credentialsVerifier{db}
}

// The credential is the user's email address.
func (cs *credentialsVerifier) ValidateUser(email string, password string, scope string, r *http.Request) error {
	var hash []byte
	err := cs.db.
		QueryRow("SELECT password_hash FROM user WHERE email=?", email).
		Scan(&hash)
	if err != nil {
		return err
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}

func (cs *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	_, err := cs.db.Exec(
		"INSERT INTO token (email, token_id, refresh_token_id, expiration) VALUES (?, ?, ?, ?)",
		credential,
		tokenID,
		refreshTokenID,
		time.Now().Add(8760*time.Hour),
	)
	return err
}

func (cs *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	var expiration time.Time
	var ok bool

	cs.db.
		QueryRow(`
			DELETE FROM token
			WHERE email = ?
				AND token_id = ?
				AND refresh_token_id = ?
			RETURNING expiration, 1`,
			credential,
			tokenID,
			refreshTokenID,
		).
		Scan(&expiration, &ok)
	if !ok {
		return errors.New("could not refresh")
	}

	if expiration.Before(time.Now()) {
		return errors.New("could not refresh")
	}
	return nil
}

// AddClaims stamps the token with the authenticated user's identity, so
// request handlers can resolve the caller without touching the database.
func (cs *credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	var id int
	var name string
	err := cs.db.
		QueryRow("SELECT id, name FROM user WHERE email=?", credential).
		Scan(&id, &name)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"user_id": strconv.Itoa(id),
		"name":    name,
		"email":   credential,
	}, nil
}

func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}

func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("not supported")
}

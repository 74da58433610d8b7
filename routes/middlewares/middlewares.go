package middlewares

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/pulsehq/pulse-survey/httpx"
	"github.com/pulsehq/pulse-survey/log"
	"github.com/pulsehq/pulse-survey/model"
)

type contextKey string

const currentUserKey contextKey = "currentUser"

// CurrentUser extracts the authenticated caller stored by Authenticated or
// MaybeAuthenticated.
func CurrentUser(r *http.Request) (model.User, bool) {
	user, ok := r.Context().Value(currentUserKey).(model.User)
	return user, ok
}

func withUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, currentUserKey, user)
}

// Authenticated validates the bearer token and resolves it to a user.
// Requests without a valid token get 401.
func Authenticated(tokenSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(tokenSecret, nil), resolveUser).Handler(next)
	}
}

func resolveUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(oauth.ClaimsContext).(map[string]string)
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "auth.claims")
			return
		}

		id, err := strconv.Atoi(claims["user_id"])
		if err != nil {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "auth.claims.user_id")
			return
		}

		user := model.User{ID: id, Name: claims["name"], Email: claims["email"]}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// MaybeAuthenticated resolves a bearer token when one is present, but lets the
// request through anonymously when the header is missing or the token does not
// validate. The authenticated attempt runs against a response buffer, so a
// rejection never reaches the wire.
func MaybeAuthenticated(tokenSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authenticated := Authenticated(tokenSecret)(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			buf := httpx.NewResponseBuffer()
			authenticated.ServeHTTP(buf, r)
			if buf.Status() == http.StatusUnauthorized {
				// invalid token: carry on without an identity
				log.Debug("auth.optional: invalid token, continuing anonymously")
				next.ServeHTTP(w, r)
				return
			}

			err := buf.Flush(w)
			if err != nil {
				log.Errorf("auth.optional.flush: %s", err)
			}
		})
	}
}

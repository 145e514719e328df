package middleware

import (
	"context"
	"net/http"
	"strings"

	"qa-portal/internal/models"
	"qa-portal/internal/utils"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	CtxUserID   ctxKey = "uid"
	CtxUsername ctxKey = "username"
	CtxRole     ctxKey = "role"
)

const SessionCookie = "session"

func WithAuth(log zerolog.Logger, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Read JWT from cookie "session" or Authorization: Bearer
			var tok string
			if c, err := r.Cookie(SessionCookie); err == nil {
				tok = c.Value
			} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tok = strings.TrimPrefix(h, "Bearer ")
			}

			if tok == "" {
				next.ServeHTTP(w, r) // unauthenticated; RequireAuth decides
				return
			}

			claims, err := utils.ParseJWT(secret, tok)
			if err != nil {
				log.Debug().Err(err).Msg("rejected session token")
				// clear broken/expired cookie so it stops being sent
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    "",
					Path:     "/",
					HttpOnly: true,
					MaxAge:   -1,
				})
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), CtxUserID, claims.UserID)
			ctx = context.WithValue(ctx, CtxUsername, claims.Username)
			ctx = context.WithValue(ctx, CtxRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the authenticated identity placed in ctx by WithAuth.
func ActorFrom(ctx context.Context) models.Actor {
	uid, _ := utils.GetString(ctx, CtxUserID)
	name, _ := utils.GetString(ctx, CtxUsername)
	role, _ := utils.GetString(ctx, CtxRole)
	return models.Actor{ID: uid, Username: name, Role: models.Role(role)}
}

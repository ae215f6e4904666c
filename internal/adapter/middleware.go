package adapter

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

type contextKey string

const userIDContextKey contextKey = "userID"

// RequireAuth verifies the session cookie and injects the account id into
// the request context. Missing, invalid, expired, or denylisted tokens all
// yield the same unauthorized outcome.
func (h *AuthHandler) RequireAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, Response{Success: false, Message: "not authorized, login again"})
			return
		}

		userID, err := h.usecase.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			h.logger.Debug("Rejected session token", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, Response{Success: false, Message: "not authorized, login again"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next(w, r.WithContext(ctx), ps)
	}
}

// UserIDFromContext returns the account id injected by RequireAuth, or ""
// for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok {
		return ""
	}
	return userID
}

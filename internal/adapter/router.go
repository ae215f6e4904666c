package adapter

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// NewRouter wires the auth endpoints. Routes that act on the authenticated
// account go through the session-cookie middleware.
func NewRouter(h *AuthHandler) http.Handler {
	router := httprouter.New()

	router.POST("/api/auth/register", h.Register)
	router.POST("/api/auth/login", h.Login)
	router.POST("/api/auth/logout", h.Logout)
	router.POST("/api/auth/send-verify-otp", h.RequireAuth(h.SendVerifyOtp))
	router.POST("/api/auth/verify-account", h.RequireAuth(h.VerifyAccount))
	router.GET("/api/auth/is-auth", h.RequireAuth(h.IsAuthenticated))
	router.POST("/api/auth/send-reset-otp", h.SendResetOtp)
	router.POST("/api/auth/reset-password", h.ResetPassword)

	return CORS(router)
}

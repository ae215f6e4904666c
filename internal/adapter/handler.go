// Package adapter exposes the credential lifecycle as an HTTP JSON API.
// Every operation answers with a flat success/message outcome; the session
// token travels only in an http-only cookie.
package adapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/azamatbayev/auth-service/internal/usecase"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const sessionCookieName = "token"

type AuthHandler struct {
	usecase      *usecase.AuthUsecase
	logger       *zap.Logger
	cookieSecure bool
	cookieMaxAge int
}

func NewAuthHandler(ucase *usecase.AuthUsecase, logger *zap.Logger, cookieSecure bool, cookieMaxAge int) *AuthHandler {
	return &AuthHandler{
		usecase:      ucase,
		logger:       logger,
		cookieSecure: cookieSecure,
		cookieMaxAge: cookieMaxAge,
	}
}

// Response is the flat outcome shape shared by every endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyAccountRequest struct {
	Otp string `json:"otp"`
}

type sendResetOtpRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Otp         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if h.cookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   h.cookieMaxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: sameSite,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	sameSite := http.SameSiteLaxMode
	if h.cookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: sameSite,
	})
}

// fail maps a usecase error to an HTTP status and the flat failure body.
func (h *AuthHandler) fail(w http.ResponseWriter, err error) {
	var status int
	message := err.Error()
	switch {
	case errors.Is(err, usecase.ErrInvalidInput),
		errors.Is(err, usecase.ErrInvalidOtp),
		errors.Is(err, usecase.ErrOtpExpired),
		errors.Is(err, usecase.ErrAlreadyVerified):
		status = http.StatusBadRequest
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, usecase.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, usecase.ErrDelivery):
		status = http.StatusBadGateway
	default:
		h.logger.Error("Internal error handling request", zap.Error(err))
		status = http.StatusInternalServerError
		message = "internal server error"
	}
	writeJSON(w, status, Response{Success: false, Message: message})
}

// Register handles user registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	token, err := h.usecase.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Failed to register user", zap.String("email", req.Email), zap.Error(err))
		h.fail(w, err)
		return
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "account created successfully"})
}

// Login handles user login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	token, err := h.usecase.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Failed to login user", zap.String("email", req.Email), zap.Error(err))
		h.fail(w, err)
		return
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "logged in"})
}

// Logout clears the session cookie and denylists the presented token until
// its expiry. A missing or invalid cookie still logs out successfully.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := h.usecase.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("Failed to revoke session token", zap.Error(err))
			h.fail(w, err)
			return
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "logged out"})
}

// SendVerifyOtp issues an email-verification OTP for the authenticated user.
func (h *AuthHandler) SendVerifyOtp(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID := UserIDFromContext(r.Context())
	if err := h.usecase.SendVerifyOtp(r.Context(), userID); err != nil {
		h.logger.Warn("Failed to send verification OTP", zap.String("userID", userID), zap.Error(err))
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "verification OTP sent via email"})
}

// VerifyAccount consumes an email-verification OTP for the authenticated user.
func (h *AuthHandler) VerifyAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req verifyAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	userID := UserIDFromContext(r.Context())
	if err := h.usecase.VerifyEmail(r.Context(), userID, req.Otp); err != nil {
		h.logger.Warn("Failed to verify account", zap.String("userID", userID), zap.Error(err))
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "email verified successfully"})
}

// IsAuthenticated reports success for any request that passed the auth
// middleware.
func (h *AuthHandler) IsAuthenticated(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "authenticated"})
}

// SendResetOtp issues a password-reset OTP for the given email.
func (h *AuthHandler) SendResetOtp(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req sendResetOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	if err := h.usecase.SendResetOtp(r.Context(), req.Email); err != nil {
		h.logger.Warn("Failed to send reset OTP", zap.String("email", req.Email), zap.Error(err))
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "OTP sent to your email"})
}

// ResetPassword consumes a password-reset OTP and replaces the password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	if err := h.usecase.ResetPassword(r.Context(), req.Email, req.Otp, req.NewPassword); err != nil {
		h.logger.Warn("Failed to reset password", zap.String("email", req.Email), zap.Error(err))
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "password reset successfully"})
}

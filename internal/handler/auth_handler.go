package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/service"
	"workflow-dashboard/internal/token"
	"workflow-dashboard/internal/util"
)

// AuthHandler handles login, code verification, refresh, logout and validation.
type AuthHandler struct {
	responder
	auth    *service.AuthService
	cookies config.AuthConfig
}

func NewAuthHandler(auth *service.AuthService, cookies config.AuthConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		responder: responder{logger: logger},
		auth:      auth,
		cookies:   cookies,
	}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/verify-code", h.VerifyCode)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.Get("/validate", h.Validate)
	})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type loginResponse struct {
	Success      bool              `json:"success"`
	RequiresCode bool              `json:"requiresCode"`
	Token        string            `json:"token,omitempty"`
	User         *model.PublicUser `json:"user,omitempty"`
	UserID       string            `json:"userId,omitempty"`
	RememberMe   *bool             `json:"rememberMe,omitempty"`
	Message      string            `json:"message"`
}

// Login handles the password step
// @Summary Log in with email and password
// @Description Skips the emailed code when a valid trust cookie for the same user is presented
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} loginResponse
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondBadRequest(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), service.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		TrustToken: h.cookieValue(r, h.cookies.TrustCookieName),
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	out := loginResponse{
		Success:      true,
		RequiresCode: res.RequiresCode,
		Token:        res.Token,
		User:         res.User,
		UserID:       res.UserID,
		Message:      res.Message,
	}
	if res.RequiresCode {
		rememberMe := res.RememberMe
		out.RememberMe = &rememberMe
	}
	h.respondWithJSON(w, http.StatusOK, out)

	h.logger.Debug("Login handled",
		util.Bool("requires_code", res.RequiresCode),
		util.Duration("duration", time.Since(startTime)))
}

type verifyCodeRequest struct {
	UserID     string `json:"userId"`
	Code       string `json:"code"`
	RememberMe bool   `json:"rememberMe"`
}

type sessionResponse struct {
	Success      bool             `json:"success"`
	Token        string           `json:"token"`
	RefreshToken string           `json:"refreshToken,omitempty"`
	User         model.PublicUser `json:"user"`
}

// VerifyCode handles the emailed code step
// @Summary Redeem a verification code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} sessionResponse
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /auth/verify-code [post]
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondBadRequest(w, r, err)
		return
	}

	res, err := h.auth.VerifyCode(r.Context(), service.VerifyCodeRequest{
		UserID:     req.UserID,
		Code:       req.Code,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	switch res.Trust {
	case service.TrustPersist:
		h.setCookie(w, h.cookies.TrustCookieName, res.RefreshToken, h.cookies.TrustTTL)
	case service.TrustClear:
		h.clearCookie(w, h.cookies.TrustCookieName)
	}

	h.respondWithJSON(w, http.StatusOK, sessionResponse{
		Success:      true,
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
		User:         res.User,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles access token renewal
// @Summary Exchange a refresh token for a new access token
// @Description Reads the token from the body, falling back to the trust cookie
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} sessionResponse
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondBadRequest(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken = h.cookieValue(r, h.cookies.TrustCookieName)
	}

	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, sessionResponse{
		Success:      true,
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
		User:         res.User,
	})
}

// Logout clears the access cookie and keeps the device trusted
// @Summary Log out
// @Tags auth
// @Produce json
// @Success 200 {object} Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	res := h.auth.Logout(r.Context())
	if res.ClearAccess {
		h.clearCookie(w, h.cookies.AccessCookieName)
	}
	if res.Trust == service.TrustClear {
		h.clearCookie(w, h.cookies.TrustCookieName)
	}
	h.respondWithJSON(w, http.StatusOK, successResponse("logged out"))
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// Validate reports whether the bearer access token is valid
// @Summary Validate an access token
// @Tags auth
// @Produce json
// @Success 200 {object} validateResponse
// @Failure 401 {object} validateResponse
// @Router /auth/validate [get]
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.ValidateAccess(bearerToken(r)); err != nil {
		h.respondWithJSON(w, http.StatusUnauthorized, validateResponse{Valid: false})
		return
	}
	h.respondWithJSON(w, http.StatusOK, validateResponse{Valid: true})
}

func (h *AuthHandler) cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = token.DefaultRefreshTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookies.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

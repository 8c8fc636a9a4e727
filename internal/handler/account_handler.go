package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"workflow-dashboard/internal/service"
)

// AccountHandler serves the caller's n8n account records.
type AccountHandler struct {
	responder
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{responder: responder{logger: logger}, accounts: accounts}
}

// RegisterRoutes expects router to already require an access token.
func (h *AccountHandler) RegisterRoutes(router chi.Router) {
	router.Route("/n8n-accounts", func(r chi.Router) {
		r.Get("/list", h.List)
		r.Post("/create", h.Create)
		r.Post("/set-default", h.SetDefault)
		r.Delete("/delete", h.Delete)
	})
}

type accountListResponse struct {
	Success  bool                  `json:"success"`
	Accounts []service.AccountView `json:"accounts"`
}

type accountResponse struct {
	Success bool                 `json:"success"`
	Account *service.AccountView `json:"account"`
}

type accountIDRequest struct {
	AccountID string `json:"accountId"`
}

// List returns the caller's accounts, default first
// @Summary List n8n accounts
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} accountListResponse
// @Failure 401 {object} Response
// @Router /n8n-accounts/list [get]
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	accounts, err := h.accounts.List(r.Context(), claims.UserID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, accountListResponse{Success: true, Accounts: accounts})
}

// Create connects a new n8n instance
// @Summary Create an n8n account
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateAccountRequest true "Account"
// @Success 201 {object} accountResponse
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /n8n-accounts/create [post]
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var req service.CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondBadRequest(w, r, err)
		return
	}

	account, err := h.accounts.Create(r.Context(), claims.UserID, req)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, accountResponse{Success: true, Account: account})
}

// SetDefault marks one account as the caller's default
// @Summary Set the default n8n account
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /n8n-accounts/set-default [post]
func (h *AccountHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var req accountIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondBadRequest(w, r, err)
		return
	}

	if err := h.accounts.SetDefault(r.Context(), claims.UserID, req.AccountID); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse("default account updated"))
}

// Delete removes one of the caller's accounts
// @Summary Delete an n8n account
// @Description accountId is read from the body or the query string
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /n8n-accounts/delete [delete]
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var req accountIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondBadRequest(w, r, err)
		return
	}
	if req.AccountID == "" {
		req.AccountID = r.URL.Query().Get("accountId")
	}

	if err := h.accounts.Delete(r.Context(), claims.UserID, req.AccountID); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse("account deleted"))
}

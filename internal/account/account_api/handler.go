package account_api

import (
	"fmt"
	"net/http"

	"fast-queue/internal/account"
	"fast-queue/internal/logger"
	"fast-queue/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *account.Service
	Logger  *logger.Logger
}

func NewHandler(service *account.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/establishments", h.CreateAccount)
	r.Post("/auth/password", h.Authenticate)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var in account.CreateAccountInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, err)
		return
	}

	e, err := h.Service.CreateAccount(r.Context(), in)
	if err != nil {
		h.Logger.Warn("AUTH", fmt.Sprintf("CreateAccount failed: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var in account.AuthenticateInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, err)
		return
	}

	token, err := h.Service.Authenticate(r.Context(), in)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, token)
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/churnistic/churnistic/internal/banks"
	"github.com/churnistic/churnistic/internal/cards"
	"github.com/churnistic/churnistic/internal/domain"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	cards   *cards.Service
	banks   *banks.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new API handler.
func NewHandler(cardSvc *cards.Service, bankSvc *banks.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		cards:   cardSvc,
		banks:   bankSvc,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// CheckEligibility handles POST /eligibility/check.
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req cards.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.CardID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cardId is required",
		})
		return
	}

	result, err := h.cards.CheckEligibility(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ApplyForCard handles POST /applications.
func (h *Handler) ApplyForCard(w http.ResponseWriter, r *http.Request) {
	var req cards.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.CardID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cardId is required",
		})
		return
	}

	app, err := h.cards.ApplyForCard(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

// ListApplications handles GET /applications with cursor pagination.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be between 1 and 100",
			})
			return
		}
		limit = n
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := h.cards.ListApplications(r.Context(), GetUserID(r.Context()), limit, cursor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// GetApplication handles GET /applications/{id}.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.cards.GetApplication(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// UpdateApplicationStatus handles PATCH /applications/{id}/status.
func (h *Handler) UpdateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var req cards.StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	app, err := h.cards.UpdateStatus(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// UpdateSpend handles POST /applications/{id}/spend.
func (h *Handler) UpdateSpend(w http.ResponseWriter, r *http.Request) {
	var req cards.SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	app, err := h.cards.UpdateSpend(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// AddRetentionOffer handles POST /applications/{id}/retention-offers.
func (h *Handler) AddRetentionOffer(w http.ResponseWriter, r *http.Request) {
	var req cards.OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	offer, err := h.cards.AddRetentionOffer(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, offer)
}

// ListRetentionOffers handles GET /applications/{id}/retention-offers.
func (h *Handler) ListRetentionOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.cards.ListRetentionOffers(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, offers)
}

// ListCards handles GET /cards.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	list, err := h.cards.ListCards(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// GetCard handles GET /cards/{id}.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.GetCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// CreateCard handles POST /cards.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var card domain.Card
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	saved, err := h.cards.SaveCard(r.Context(), &card)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// ListBanks handles GET /banks.
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	list, err := h.banks.ListBanks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// GetBank handles GET /banks/{id}.
func (h *Handler) GetBank(w http.ResponseWriter, r *http.Request) {
	bank, err := h.banks.GetBank(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bank)
}

// CreateBank handles POST /banks.
func (h *Handler) CreateBank(w http.ResponseWriter, r *http.Request) {
	var bank domain.Bank
	if err := json.NewDecoder(r.Body).Decode(&bank); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	saved, err := h.banks.SaveBank(r.Context(), &bank)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// UpdateBank handles PUT /banks/{id}.
func (h *Handler) UpdateBank(w http.ResponseWriter, r *http.Request) {
	var bank domain.Bank
	if err := json.NewDecoder(r.Body).Decode(&bank); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	saved, err := h.banks.UpdateBank(r.Context(), chi.URLParam(r, "id"), &bank)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// DeleteBank handles DELETE /banks/{id}.
func (h *Handler) DeleteBank(w http.ResponseWriter, r *http.Request) {
	if err := h.banks.DeleteBank(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Bank deleted",
	})
}

// OpenAccount handles POST /accounts.
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req banks.OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.BankID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bankId is required",
		})
		return
	}

	account, err := h.banks.OpenAccount(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// ListAccounts handles GET /accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.banks.ListAccounts(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

// GetAccount handles GET /accounts/{id}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.banks.GetAccount(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// AddDirectDeposit handles POST /accounts/{id}/deposits.
func (h *Handler) AddDirectDeposit(w http.ResponseWriter, r *http.Request) {
	var req banks.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	dep, err := h.banks.AddDirectDeposit(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dep)
}

// AddDebitTransaction handles POST /accounts/{id}/debits.
func (h *Handler) AddDebitTransaction(w http.ResponseWriter, r *http.Request) {
	var req banks.DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	txn, err := h.banks.AddDebitTransaction(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

// GetBonusProgress handles GET /accounts/{id}/bonus-progress.
func (h *Handler) GetBonusProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.banks.GetBonusProgress(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// ListRules handles GET /rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.cards.ListRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": list,
		"count": len(list),
	})
}

// CreateRule handles POST /rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var cfg domain.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	saved, err := h.cards.SaveRule(r.Context(), &cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("rule created", "id", saved.ID, "name", saved.Name)
	writeJSON(w, http.StatusCreated, saved)
}

// DeleteRule handles DELETE /rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.cards.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Rule deleted and engine reloaded",
	})
}

// ReloadRules handles POST /rules/reload.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.cards.ReloadRules(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	list, err := h.cards.ListRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("rules reloaded", "count", len(list))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(list),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready: checks every backend dependency.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			checks["repository"] = err.Error()
			healthy = false
		} else {
			checks["repository"] = "ok"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		} else {
			checks["cache"] = "ok"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			checks["bus"] = err.Error()
			healthy = false
		} else {
			checks["bus"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ready":  healthy,
		"checks": checks,
	})
}

// writeError maps service errors to HTTP responses. Unknown errors are
// logged and reported as 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		status := http.StatusInternalServerError
		switch de.Code {
		case domain.CodeNotFound:
			status = http.StatusNotFound
		case domain.CodeForbidden:
			status = http.StatusForbidden
		case domain.CodeBadRequest:
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{
			"code":  de.Code,
			"error": de.Message,
		})
		return
	}

	slog.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

// writeJSON writes a JSON response with proper headers.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/directory"
	"marketplace/models"

	"github.com/go-chi/chi/v5"
)

// CreateTenderHandler обрабатывает POST /api/tenders/new
func (h *Handler) CreateTenderHandler(w http.ResponseWriter, r *http.Request) {
	// Ограничение размера тела, чтобы избежать DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	defer r.Body.Close()

	var tender models.Tender
	if err := json.Unmarshal(body, &tender); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON format")
		return
	}

	if tender.Priority == "" {
		tender.Priority = models.PriorityMedium
	}
	if err := validateTenderRequest(&tender); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	// Тендер может создать только владелец объекта
	owner, err := h.Directory.LandlordForProperty(r.Context(), tender.PropertyID)
	if err != nil {
		if errors.Is(err, directory.ErrPropertyNotFound) {
			writeError(w, http.StatusBadRequest, "validation", "unknown propertyId")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if owner != tender.LandlordID {
		writeError(w, http.StatusForbidden, "not_authorized", "landlord does not own this property")
		return
	}

	if err := h.Store.CreateTender(r.Context(), &tender); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to create tender")
		return
	}

	writeJSON(w, tender)
}

// validateTenderRequest проверяет поля заявки до обращения к хранилищу
func validateTenderRequest(t *models.Tender) error {
	if t.Title == "" || len(t.Title) > 100 {
		return errors.New("title is required and max length 100")
	}
	if len(t.Description) > 1000 {
		return errors.New("description max length 1000")
	}
	if !models.ValidTradeCategory(t.Trade) {
		return errors.New("invalid trade")
	}
	if !models.ValidPriority(t.Priority) {
		return errors.New("invalid priority")
	}
	if t.PropertyID == "" || t.LandlordID == "" {
		return errors.New("propertyId and landlordId are required")
	}
	if t.BudgetMinPence < 0 || t.BudgetMaxPence < t.BudgetMinPence {
		return errors.New("budget range must satisfy 0 <= min <= max")
	}
	if !t.Deadline.After(time.Now()) {
		return errors.New("deadline must be in the future")
	}
	return nil
}

// ListOpenTendersHandler возвращает открытые тендеры, подходящие
// подрядчику по специализациям, свежие первыми
func (h *Handler) ListOpenTendersHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	contractorID := r.URL.Query().Get("contractorId")
	if contractorID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing contractorId parameter")
		return
	}

	trades, err := h.Directory.TradesForContractor(r.Context(), contractorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to get contractor trades")
		return
	}
	if len(trades) == 0 {
		writeJSON(w, []models.Tender{})
		return
	}

	tenders, err := h.Store.ListOpenTendersForTrades(r.Context(), trades, time.Now(), params.Limit, params.Offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to get tenders")
		return
	}

	writeJSON(w, tenders)
}

// CancelTenderHandler обрабатывает PUT /api/tenders/{tenderId}/cancel
func (h *Handler) CancelTenderHandler(w http.ResponseWriter, r *http.Request) {
	h.tenderTransitionHandler(w, r, h.Store.CancelTender)
}

// CompleteTenderHandler обрабатывает PUT /api/tenders/{tenderId}/complete
func (h *Handler) CompleteTenderHandler(w http.ResponseWriter, r *http.Request) {
	h.tenderTransitionHandler(w, r, h.Store.CompleteTender)
}

func (h *Handler) tenderTransitionHandler(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error)) {
	tenderID, ok := tenderIDParam(w, r)
	if !ok {
		return
	}

	landlordID := r.URL.Query().Get("landlordId")
	if landlordID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing landlordId parameter")
		return
	}

	tender, err := op(r.Context(), tenderID, landlordID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, tender)
}

// GetTenderHistoryHandler возвращает журнал переходов статуса тендера
func (h *Handler) GetTenderHistoryHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, ok := tenderIDParam(w, r)
	if !ok {
		return
	}

	transitions, err := h.Store.GetTenderTransitions(r.Context(), tenderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, transitions)
}

func tenderIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	tenderIDStr := chi.URLParam(r, "tenderId")
	tenderID, err := strconv.Atoi(tenderIDStr)
	if err != nil || tenderID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid tenderId")
		return 0, false
	}
	return tenderID, true
}

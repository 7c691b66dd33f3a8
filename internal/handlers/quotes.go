package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"marketplace/db"
	"marketplace/internal/metrics"
	"marketplace/internal/notify"
	"marketplace/models"

	"github.com/go-chi/chi/v5"
)

// SubmitQuoteHandler обрабатывает POST /api/tenders/{tenderId}/quotes/new.
// Отказы не ретраятся: каждый из них — окончательный ответ по текущему
// состоянию тендера.
func (h *Handler) SubmitQuoteHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, ok := tenderIDParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	defer r.Body.Close()

	var quote models.Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON format")
		return
	}
	quote.TenderID = tenderID

	if err := validateQuoteRequest(&quote); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	tender, err := h.Store.GetTender(r.Context(), tenderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Специализация подрядчика должна покрывать категорию тендера
	trades, err := h.Directory.TradesForContractor(r.Context(), quote.ContractorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to get contractor trades")
		return
	}
	if !tradesInclude(trades, tender.Trade) {
		writeStoreError(w, db.ErrTradeMismatch)
		return
	}

	if err := h.Store.CreateQuote(r.Context(), &quote, time.Now()); err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.QuotesSubmitted.Inc()
	h.Publisher.Publish(r.Context(), notify.NewEvent(notify.EventQuoteReceived, tenderID, quote.ID, tender.LandlordID, map[string]string{
		"contractorId": quote.ContractorID,
		"amountPence":  strconv.FormatInt(quote.AmountPence, 10),
	}))

	writeJSON(w, quote)
}

func validateQuoteRequest(q *models.Quote) error {
	if q.ContractorID == "" {
		return errors.New("contractorId is required")
	}
	if q.AmountPence <= 0 {
		return errors.New("amountPence must be positive")
	}
	if len(q.Description) > 1000 {
		return errors.New("description max length 1000")
	}
	if q.EstimatedHours != nil && *q.EstimatedHours < 0 {
		return errors.New("estimatedHours must be >= 0")
	}
	if q.MaterialsCostPence != nil && !q.MaterialsIncluded {
		return errors.New("materialsCostPence is only meaningful with materialsIncluded")
	}
	if q.MaterialsCostPence != nil && *q.MaterialsCostPence < 0 {
		return errors.New("materialsCostPence must be >= 0")
	}
	if q.WarrantyDays < 0 {
		return errors.New("warrantyDays must be >= 0")
	}
	if q.AvailableFrom.IsZero() {
		return errors.New("availableFrom is required")
	}
	return nil
}

func tradesInclude(trades []models.TradeCategory, trade models.TradeCategory) bool {
	for _, t := range trades {
		if t == trade {
			return true
		}
	}
	return false
}

// RankQuotesHandler обрабатывает GET /api/tenders/{tenderId}/quotes
func (h *Handler) RankQuotesHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, ok := tenderIDParam(w, r)
	if !ok {
		return
	}

	quotes, err := h.Store.RankQuotes(r.Context(), tenderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, quotes)
}

// AcceptQuoteHandler обрабатывает PUT /api/tenders/{tenderId}/accept.
// Ровно один из конкурирующих вызовов проходит; остальные получают
// invalid_state, потому что их предусловие после коммита победителя
// уже не выполняется.
func (h *Handler) AcceptQuoteHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, ok := tenderIDParam(w, r)
	if !ok {
		return
	}

	quoteIDStr := r.URL.Query().Get("quoteId")
	landlordID := r.URL.Query().Get("landlordId")
	if quoteIDStr == "" || landlordID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing quoteId or landlordId")
		return
	}
	quoteID, err := strconv.Atoi(quoteIDStr)
	if err != nil || quoteID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid quoteId")
		return
	}

	tender, err := h.Store.GetTender(r.Context(), tenderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Принимать может только владелец объекта, по данным внешнего
	// справочника
	owner, err := h.Directory.LandlordForProperty(r.Context(), tender.PropertyID)
	if err != nil {
		// сбой справочника — не отказ в доступе
		writeError(w, http.StatusInternalServerError, "internal", "failed to resolve property owner")
		return
	}
	if owner != landlordID {
		writeStoreError(w, db.ErrNotAuthorized)
		return
	}

	winner, losers, err := h.Store.AcceptQuote(r.Context(), tenderID, quoteID)
	if err != nil {
		if errors.Is(err, db.ErrInvalidState) {
			metrics.AcceptConflicts.Inc()
		}
		writeStoreError(w, err)
		return
	}

	metrics.QuotesAccepted.Inc()

	// Уведомления — best effort, после коммита; доставка не откатывает
	// принятие
	h.Publisher.Publish(r.Context(), notify.NewEvent(notify.EventQuoteAccepted, tenderID, winner.ID, winner.ContractorID, nil))
	for _, loser := range losers {
		h.Publisher.Publish(r.Context(), notify.NewEvent(notify.EventQuoteRejected, tenderID, loser.ID, loser.ContractorID, nil))
	}

	writeJSON(w, winner)
}

// WithdrawQuoteHandler обрабатывает PUT /api/quotes/{quoteId}/withdraw
func (h *Handler) WithdrawQuoteHandler(w http.ResponseWriter, r *http.Request) {
	quoteIDStr := chi.URLParam(r, "quoteId")
	quoteID, err := strconv.Atoi(quoteIDStr)
	if err != nil || quoteID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid quoteId")
		return
	}

	contractorID := r.URL.Query().Get("contractorId")
	if contractorID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing contractorId parameter")
		return
	}

	quote, err := h.Store.WithdrawQuote(r.Context(), quoteID, contractorID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, quote)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"marketplace/db"
	"marketplace/internal/directory"
	"marketplace/internal/notify"
)

// Handler оборачивает хранилище и внешних коллабораторов
type Handler struct {
	Store     StorageInterface
	Directory directory.Directory
	Publisher notify.Publisher
}

// NewHandler создает новый Handler
func NewHandler(store StorageInterface, dir directory.Directory, publisher notify.Publisher) *Handler {
	return &Handler{Store: store, Directory: dir, Publisher: publisher}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError отдает ошибку с машинно-читаемым кодом: клиент должен
// отличать "кто-то уже принял" от "дубль" и от "не та специализация"
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}

// writeStoreError транслирует ошибки предусловий хранилища в HTTP-ответы
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrTenderNotFound):
		writeError(w, http.StatusNotFound, "tender_not_found", err.Error())
	case errors.Is(err, db.ErrQuoteNotFound):
		writeError(w, http.StatusNotFound, "quote_not_found", err.Error())
	case errors.Is(err, db.ErrTenderClosed):
		writeError(w, http.StatusConflict, "tender_closed", err.Error())
	case errors.Is(err, db.ErrDeadlinePassed):
		writeError(w, http.StatusConflict, "deadline_passed", err.Error())
	case errors.Is(err, db.ErrDuplicateQuote):
		writeError(w, http.StatusConflict, "duplicate_quote", err.Error())
	case errors.Is(err, db.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, db.ErrTradeMismatch):
		writeError(w, http.StatusForbidden, "trade_mismatch", err.Error())
	case errors.Is(err, db.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams парсит limit и offset из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) PaginationParams {
	var params PaginationParams
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	params.Limit = 20 // дефолт
	params.Offset = 0

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

package handlers_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace/db"
	"marketplace/internal/handlers"
	"marketplace/internal/handlers/testutils"
	"marketplace/internal/notify"
	"marketplace/models"

	"github.com/stretchr/testify/require"
)

// MockStorage реализует StorageInterface
type MockStorage struct {
	CreateTenderErr   error
	CreateQuoteErr    error
	GetTenderFunc     func(ctx context.Context, tenderID int) (*models.Tender, error)
	AcceptQuoteFunc   func(ctx context.Context, tenderID, quoteID int) (*models.Quote, []models.Quote, error)
	WithdrawQuoteFunc func(ctx context.Context, quoteID int, contractorID string) (*models.Quote, error)
}

func futureTender(id int) *models.Tender {
	return &models.Tender{
		ID:             id,
		PropertyID:     "prop-1",
		LandlordID:     "landlord-1",
		Trade:          models.TradePlumbing,
		Title:          "Fix leaking tap",
		Priority:       models.PriorityMedium,
		BudgetMinPence: 5000,
		BudgetMaxPence: 15000,
		Deadline:       time.Now().Add(48 * time.Hour),
		Status:         models.TenderOpen,
		CreatedAt:      time.Now(),
	}
}

func (m *MockStorage) CreateTender(ctx context.Context, t *models.Tender) error {
	if m.CreateTenderErr != nil {
		return m.CreateTenderErr
	}
	t.ID = 1
	t.Status = models.TenderOpen
	t.CreatedAt = time.Now()
	return nil
}

func (m *MockStorage) GetTender(ctx context.Context, tenderID int) (*models.Tender, error) {
	if m.GetTenderFunc != nil {
		return m.GetTenderFunc(ctx, tenderID)
	}
	return futureTender(tenderID), nil
}

func (m *MockStorage) ListOpenTendersForTrades(ctx context.Context, trades []models.TradeCategory, now time.Time, limit, offset int) ([]models.Tender, error) {
	return []models.Tender{*futureTender(1)}, nil
}

func (m *MockStorage) CancelTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error) {
	t := futureTender(tenderID)
	t.Status = models.TenderCancelled
	return t, nil
}

func (m *MockStorage) CompleteTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error) {
	return nil, db.ErrInvalidState
}

func (m *MockStorage) GetTenderTransitions(ctx context.Context, tenderID int) ([]models.TenderTransition, error) {
	return []models.TenderTransition{
		{ID: 1, TenderID: tenderID, FromStatus: "", ToStatus: models.TenderOpen, Actor: "landlord-1"},
	}, nil
}

func (m *MockStorage) CreateQuote(ctx context.Context, q *models.Quote, now time.Time) error {
	if m.CreateQuoteErr != nil {
		return m.CreateQuoteErr
	}
	q.ID = 10
	q.Status = models.QuotePending
	q.SubmittedAt = now
	return nil
}

func (m *MockStorage) GetQuote(ctx context.Context, quoteID int) (*models.Quote, error) {
	return &models.Quote{ID: quoteID, TenderID: 1, ContractorID: "contractor-1", Status: models.QuotePending}, nil
}

func (m *MockStorage) AcceptQuote(ctx context.Context, tenderID, quoteID int) (*models.Quote, []models.Quote, error) {
	if m.AcceptQuoteFunc != nil {
		return m.AcceptQuoteFunc(ctx, tenderID, quoteID)
	}
	winner := &models.Quote{ID: quoteID, TenderID: tenderID, ContractorID: "contractor-1", Status: models.QuoteAccepted}
	losers := []models.Quote{{ID: quoteID + 1, TenderID: tenderID, ContractorID: "contractor-2", Status: models.QuoteRejected}}
	return winner, losers, nil
}

func (m *MockStorage) RankQuotes(ctx context.Context, tenderID int) ([]models.RankedQuote, error) {
	return []models.RankedQuote{
		{Quote: models.Quote{ID: 1, TenderID: tenderID, Status: models.QuoteAccepted, AmountPence: 6500}},
		{Quote: models.Quote{ID: 2, TenderID: tenderID, Status: models.QuoteRejected, AmountPence: 12000}},
	}, nil
}

func (m *MockStorage) WithdrawQuote(ctx context.Context, quoteID int, contractorID string) (*models.Quote, error) {
	if m.WithdrawQuoteFunc != nil {
		return m.WithdrawQuoteFunc(ctx, quoteID, contractorID)
	}
	return &models.Quote{ID: quoteID, ContractorID: contractorID, Status: models.QuoteWithdrawn}, nil
}

func (m *MockStorage) SweepExpiredTenders(ctx context.Context, now time.Time) ([]models.Tender, error) {
	return nil, nil
}

func newTestHandler(store handlers.StorageInterface) *handlers.Handler {
	dir := &testutils.MemDirectory{
		Trades: map[string][]models.TradeCategory{
			"contractor-1": {models.TradePlumbing, models.TradeGeneral},
			"sparky":       {models.TradeElectrical},
		},
		Owners: map[string]string{"prop-1": "landlord-1"},
	}
	return handlers.NewHandler(store, dir, notify.Noop{})
}

func TestCreateTenderHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	reqBody := `{
        "propertyId": "prop-1",
        "landlordId": "landlord-1",
        "trade": "plumbing",
        "title": "Fix leaking tap",
        "budgetMinPence": 5000,
        "budgetMaxPence": 15000,
        "deadline": "2099-01-01T00:00:00Z"
    }`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders/new", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.CreateTenderHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "Fix leaking tap")
	require.Contains(t, string(body), `"status":"open"`)
}

func TestCreateTenderHandlerBadBudget(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	reqBody := `{
        "propertyId": "prop-1",
        "landlordId": "landlord-1",
        "trade": "plumbing",
        "title": "Fix leaking tap",
        "budgetMinPence": 20000,
        "budgetMaxPence": 15000,
        "deadline": "2099-01-01T00:00:00Z"
    }`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders/new", strings.NewReader(reqBody))
	w := httptest.NewRecorder()

	handler.CreateTenderHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "validation")
}

func TestCreateTenderHandlerWrongOwner(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	reqBody := `{
        "propertyId": "prop-1",
        "landlordId": "landlord-2",
        "trade": "plumbing",
        "title": "Fix leaking tap",
        "budgetMinPence": 5000,
        "budgetMaxPence": 15000,
        "deadline": "2099-01-01T00:00:00Z"
    }`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders/new", strings.NewReader(reqBody))
	w := httptest.NewRecorder()

	handler.CreateTenderHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "not_authorized")
}

func TestListOpenTendersHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodGet, "/api/tenders/open?contractorId=contractor-1", nil)
	w := httptest.NewRecorder()

	handler.ListOpenTendersHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "Fix leaking tap")
}

func TestListOpenTendersHandlerNoTrades(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	// подрядчик без специализаций получает пустой список, не ошибку
	req := httptest.NewRequest(http.MethodGet, "/api/tenders/open?contractorId=unknown", nil)
	w := httptest.NewRecorder()

	handler.ListOpenTendersHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Equal(t, "[]\n", w.Body.String())
}

func TestListOpenTendersHandlerMissingContractor(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodGet, "/api/tenders/open", nil)
	w := httptest.NewRecorder()

	handler.ListOpenTendersHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func submitQuoteRequest(contractorID string) *http.Request {
	reqBody := `{
        "contractorId": "` + contractorID + `",
        "amountPence": 6500,
        "description": "Replace washer and service valve",
        "availableFrom": "2099-01-02T00:00:00Z",
        "warrantyDays": 90
    }`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders/1/quotes/new", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	return testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
}

func TestSubmitQuoteHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	w := httptest.NewRecorder()
	handler.SubmitQuoteHandler(w, submitQuoteRequest("contractor-1"))

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), `"status":"pending"`)
}

func TestSubmitQuoteHandlerTradeMismatch(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	// электрик не может квотировать сантехнический тендер
	w := httptest.NewRecorder()
	handler.SubmitQuoteHandler(w, submitQuoteRequest("sparky"))

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "trade_mismatch")
}

func TestSubmitQuoteHandlerDuplicate(t *testing.T) {
	handler := newTestHandler(&MockStorage{CreateQuoteErr: db.ErrDuplicateQuote})

	w := httptest.NewRecorder()
	handler.SubmitQuoteHandler(w, submitQuoteRequest("contractor-1"))

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "duplicate_quote")
}

func TestSubmitQuoteHandlerDeadlinePassed(t *testing.T) {
	handler := newTestHandler(&MockStorage{CreateQuoteErr: db.ErrDeadlinePassed})

	w := httptest.NewRecorder()
	handler.SubmitQuoteHandler(w, submitQuoteRequest("contractor-1"))

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "deadline_passed")
}

func TestSubmitQuoteHandlerTenderNotFound(t *testing.T) {
	handler := newTestHandler(&MockStorage{
		GetTenderFunc: func(ctx context.Context, tenderID int) (*models.Tender, error) {
			return nil, db.ErrTenderNotFound
		},
	})

	w := httptest.NewRecorder()
	handler.SubmitQuoteHandler(w, submitQuoteRequest("contractor-1"))

	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "tender_not_found")
}

func TestSubmitQuoteHandlerBadAmount(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	reqBody := `{"contractorId": "contractor-1", "amountPence": 0, "availableFrom": "2099-01-02T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders/1/quotes/new", strings.NewReader(reqBody))
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.SubmitQuoteHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "validation")
}

func TestAcceptQuoteHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodPut, "/api/tenders/1/accept?quoteId=10&landlordId=landlord-1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.AcceptQuoteHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), `"status":"accepted"`)
}

func TestAcceptQuoteHandlerNotOwner(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodPut, "/api/tenders/1/accept?quoteId=10&landlordId=intruder", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.AcceptQuoteHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "not_authorized")
}

// downDirectory имитирует недоступный справочник
type downDirectory struct{}

func (downDirectory) TradesForContractor(ctx context.Context, contractorID string) ([]models.TradeCategory, error) {
	return nil, errors.New("directory unavailable")
}

func (downDirectory) LandlordForProperty(ctx context.Context, propertyID string) (string, error) {
	return "", errors.New("directory unavailable")
}

// Сбой справочника при принятии — это 500, а не отказ в доступе:
// владельца мы не проверили, а не опровергли
func TestAcceptQuoteHandlerDirectoryDown(t *testing.T) {
	handler := handlers.NewHandler(&MockStorage{}, downDirectory{}, notify.Noop{})

	req := httptest.NewRequest(http.MethodPut, "/api/tenders/1/accept?quoteId=10&landlordId=landlord-1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.AcceptQuoteHandler(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "internal")
	require.NotContains(t, w.Body.String(), "not_authorized")
}

func TestAcceptQuoteHandlerInvalidState(t *testing.T) {
	handler := newTestHandler(&MockStorage{
		AcceptQuoteFunc: func(ctx context.Context, tenderID, quoteID int) (*models.Quote, []models.Quote, error) {
			return nil, nil, db.ErrInvalidState
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/api/tenders/1/accept?quoteId=10&landlordId=landlord-1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.AcceptQuoteHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "invalid_state")
}

func TestAcceptQuoteHandlerMissingParams(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodPut, "/api/tenders/1/accept?quoteId=10", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.AcceptQuoteHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestRankQuotesHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodGet, "/api/tenders/1/quotes", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.RankQuotesHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), `"status":"accepted"`)
	require.Contains(t, w.Body.String(), `"status":"rejected"`)
}

func TestWithdrawQuoteHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodPut, "/api/quotes/10/withdraw?contractorId=contractor-1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"quoteId": "10"})
	w := httptest.NewRecorder()

	handler.WithdrawQuoteHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), `"status":"withdrawn"`)
}

func TestWithdrawQuoteHandlerNotOwner(t *testing.T) {
	handler := newTestHandler(&MockStorage{
		WithdrawQuoteFunc: func(ctx context.Context, quoteID int, contractorID string) (*models.Quote, error) {
			return nil, db.ErrNotAuthorized
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/api/quotes/10/withdraw?contractorId=intruder", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"quoteId": "10"})
	w := httptest.NewRecorder()

	handler.WithdrawQuoteHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
}

func TestCancelTenderHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodPut, "/api/tenders/1/cancel?landlordId=landlord-1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.CancelTenderHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), `"status":"cancelled"`)
}

func TestCompleteTenderHandlerInvalidState(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodPut, "/api/tenders/1/complete?landlordId=landlord-1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.CompleteTenderHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "invalid_state")
}

func TestGetTenderHistoryHandler(t *testing.T) {
	handler := newTestHandler(&MockStorage{})

	req := httptest.NewRequest(http.MethodGet, "/api/tenders/1/history", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.GetTenderHistoryHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), `"toStatus":"open"`)
}

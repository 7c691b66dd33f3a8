package testutils

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace/db"
	"marketplace/internal/directory"
	"marketplace/models"
)

// MemStore — потокобезопасное хранилище в памяти с теми же
// предусловиями, что и у SQL-реализации. Нужен, чтобы гонять
// конкурентные сценарии (гонка acceptQuote, идемпотентность свипа)
// без поднятой базы.
type MemStore struct {
	mu           sync.Mutex
	tenders      map[int]*models.Tender
	quotes       map[int]*models.Quote
	transitions  []models.TenderTransition
	nextTenderID int
	nextQuoteID  int
}

func NewMemStore() *MemStore {
	return &MemStore{
		tenders:      map[int]*models.Tender{},
		quotes:       map[int]*models.Quote{},
		nextTenderID: 1,
		nextQuoteID:  1,
	}
}

func (m *MemStore) CreateTender(ctx context.Context, t *models.Tender) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.ID = m.nextTenderID
	m.nextTenderID++
	t.Status = models.TenderOpen
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	stored := *t
	m.tenders[t.ID] = &stored
	m.recordTransition(t.ID, "", t.Status, t.LandlordID)
	return nil
}

func (m *MemStore) GetTender(ctx context.Context, tenderID int) (*models.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenders[tenderID]
	if !ok {
		return nil, db.ErrTenderNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemStore) ListOpenTendersForTrades(ctx context.Context, trades []models.TradeCategory, now time.Time, limit, offset int) ([]models.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tradeSet := map[models.TradeCategory]bool{}
	for _, t := range trades {
		tradeSet[t] = true
	}

	matched := []models.Tender{}
	for _, t := range m.tenders {
		if t.AcceptsQuotes() && tradeSet[t.Trade] && !t.Deadline.Before(now) {
			matched = append(matched, *t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if offset >= len(matched) {
		return []models.Tender{}, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemStore) CancelTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error) {
	return m.transitionTender(tenderID, landlordID, models.TenderCancelled,
		func(t *models.Tender) bool { return t.AcceptsQuotes() })
}

func (m *MemStore) CompleteTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error) {
	return m.transitionTender(tenderID, landlordID, models.TenderCompleted,
		func(t *models.Tender) bool { return t.Status == models.TenderAssigned })
}

func (m *MemStore) transitionTender(tenderID int, landlordID string, to models.TenderStatus, allowed func(*models.Tender) bool) (*models.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenders[tenderID]
	if !ok {
		return nil, db.ErrTenderNotFound
	}
	if t.LandlordID != landlordID {
		return nil, db.ErrNotAuthorized
	}
	if !allowed(t) {
		return nil, db.ErrInvalidState
	}
	m.recordTransition(tenderID, t.Status, to, landlordID)
	t.Status = to
	cp := *t
	return &cp, nil
}

func (m *MemStore) GetTenderTransitions(ctx context.Context, tenderID int) ([]models.TenderTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenders[tenderID]; !ok {
		return nil, db.ErrTenderNotFound
	}
	out := []models.TenderTransition{}
	for _, tr := range m.transitions {
		if tr.TenderID == tenderID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *MemStore) CreateQuote(ctx context.Context, q *models.Quote, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenders[q.TenderID]
	if !ok {
		return db.ErrTenderNotFound
	}
	if !t.AcceptsQuotes() {
		return db.ErrTenderClosed
	}
	if !now.Before(t.Deadline) {
		return db.ErrDeadlinePassed
	}
	for _, existing := range m.quotes {
		if existing.TenderID == q.TenderID && existing.ContractorID == q.ContractorID &&
			existing.Status != models.QuoteWithdrawn {
			return db.ErrDuplicateQuote
		}
	}

	q.ID = m.nextQuoteID
	m.nextQuoteID++
	q.Status = models.QuotePending
	if q.SubmittedAt.IsZero() {
		q.SubmittedAt = now
	}
	stored := *q
	m.quotes[q.ID] = &stored

	if t.Status == models.TenderOpen {
		m.recordTransition(t.ID, models.TenderOpen, models.TenderQuoted, q.ContractorID)
		t.Status = models.TenderQuoted
	}
	return nil
}

func (m *MemStore) GetQuote(ctx context.Context, quoteID int) (*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[quoteID]
	if !ok {
		return nil, db.ErrQuoteNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *MemStore) AcceptQuote(ctx context.Context, tenderID, quoteID int) (*models.Quote, []models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenders[tenderID]
	if !ok {
		return nil, nil, db.ErrTenderNotFound
	}
	if !t.AcceptsQuotes() {
		return nil, nil, db.ErrInvalidState
	}
	winner, ok := m.quotes[quoteID]
	if !ok || winner.TenderID != tenderID || winner.Status != models.QuotePending {
		return nil, nil, db.ErrInvalidState
	}

	losers := []models.Quote{}
	for _, q := range m.quotes {
		if q.TenderID == tenderID && q.ID != quoteID && q.Status == models.QuotePending {
			q.Status = models.QuoteRejected
			losers = append(losers, *q)
		}
	}
	winner.Status = models.QuoteAccepted
	m.recordTransition(tenderID, t.Status, models.TenderAssigned, t.LandlordID)
	t.Status = models.TenderAssigned

	cp := *winner
	return &cp, losers, nil
}

func (m *MemStore) RankQuotes(ctx context.Context, tenderID int) ([]models.RankedQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenders[tenderID]
	if !ok {
		return nil, db.ErrTenderNotFound
	}

	ranked := []models.RankedQuote{}
	for _, q := range m.quotes {
		if q.TenderID == tenderID {
			ranked = append(ranked, models.RankedQuote{Quote: *q, OutOfBudget: q.OutOfBudget(t)})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		ri, rj := statusRank(ranked[i].Status), statusRank(ranked[j].Status)
		if ri != rj {
			return ri < rj
		}
		if !ranked[i].SubmittedAt.Equal(ranked[j].SubmittedAt) {
			return ranked[i].SubmittedAt.Before(ranked[j].SubmittedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked, nil
}

func statusRank(s models.QuoteStatus) int {
	switch s {
	case models.QuoteAccepted:
		return 0
	case models.QuotePending:
		return 1
	case models.QuoteRejected:
		return 2
	default:
		return 3
	}
}

func (m *MemStore) WithdrawQuote(ctx context.Context, quoteID int, contractorID string) (*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotes[quoteID]
	if !ok {
		return nil, db.ErrQuoteNotFound
	}
	if q.ContractorID != contractorID {
		return nil, db.ErrNotAuthorized
	}
	if q.Status != models.QuotePending {
		return nil, db.ErrInvalidState
	}
	q.Status = models.QuoteWithdrawn
	cp := *q
	return &cp, nil
}

func (m *MemStore) SweepExpiredTenders(ctx context.Context, now time.Time) ([]models.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := []models.Tender{}
	for _, t := range m.tenders {
		if t.AcceptsQuotes() && t.Deadline.Before(now) {
			m.recordTransition(t.ID, t.Status, models.TenderExpired, "sweeper")
			t.Status = models.TenderExpired
			expired = append(expired, *t)
		}
	}
	return expired, nil
}

// recordTransition вызывается под мьютексом
func (m *MemStore) recordTransition(tenderID int, from, to models.TenderStatus, actor string) {
	m.transitions = append(m.transitions, models.TenderTransition{
		ID:         len(m.transitions) + 1,
		TenderID:   tenderID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		CreatedAt:  time.Now(),
	})
}

// MemDirectory — справочник-заглушка
type MemDirectory struct {
	Trades map[string][]models.TradeCategory
	Owners map[string]string
}

func (d *MemDirectory) TradesForContractor(ctx context.Context, contractorID string) ([]models.TradeCategory, error) {
	return d.Trades[contractorID], nil
}

func (d *MemDirectory) LandlordForProperty(ctx context.Context, propertyID string) (string, error) {
	owner, ok := d.Owners[propertyID]
	if !ok {
		return "", directory.ErrPropertyNotFound
	}
	return owner, nil
}

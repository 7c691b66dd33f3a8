package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"marketplace/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Ошибки предусловий. Хендлеры транслируют их в коды ответов,
// поэтому каждая ситуация должна оставаться различимой.
var (
	ErrTenderNotFound = errors.New("tender not found")
	ErrQuoteNotFound  = errors.New("quote not found")
	ErrTenderClosed   = errors.New("tender is not accepting quotes")
	ErrDeadlinePassed = errors.New("tender deadline has passed")
	ErrDuplicateQuote = errors.New("contractor already has an active quote for this tender")
	ErrTradeMismatch  = errors.New("contractor trades do not include the tender trade")
	ErrInvalidState   = errors.New("invalid state for requested transition")
	ErrNotAuthorized  = errors.New("not authorized")
)

type Storage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewStorage(db *sqlx.DB, logger *zap.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

// CreateTender создает тендер в статусе open и первую запись журнала
func (s *Storage) CreateTender(ctx context.Context, t *models.Tender) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t.Status = models.TenderOpen
	query := `
        INSERT INTO tenders
            (property_id, landlord_id, trade, title, description, priority,
             budget_min_pence, budget_max_pence, deadline, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, query,
		t.PropertyID, t.LandlordID, t.Trade, t.Title, t.Description, t.Priority,
		t.BudgetMinPence, t.BudgetMaxPence, t.Deadline, t.Status).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return err
	}

	if err := insertTransition(ctx, tx, t.ID, "", t.Status, t.LandlordID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) GetTender(ctx context.Context, id int) (*models.Tender, error) {
	t := &models.Tender{}
	query := `SELECT * FROM tenders WHERE id=$1`
	err := s.db.GetContext(ctx, t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenderNotFound
	}
	return t, err
}

// ListOpenTendersForTrades возвращает тендеры, по которым подрядчик с
// данным набором специализаций ещё может подать предложение.
// Свежие тендеры первыми, tie-break по id для стабильности.
func (s *Storage) ListOpenTendersForTrades(ctx context.Context, trades []models.TradeCategory, now time.Time, limit, offset int) ([]models.Tender, error) {
	tradeStrs := make([]string, len(trades))
	for i, t := range trades {
		tradeStrs[i] = string(t)
	}

	query := `
        SELECT * FROM tenders
        WHERE status IN ('open', 'quoted')
          AND trade = ANY($1)
          AND deadline >= $2
        ORDER BY created_at DESC, id DESC
        LIMIT $3 OFFSET $4`
	tenders := []models.Tender{}
	err := s.db.SelectContext(ctx, &tenders, query, pq.Array(tradeStrs), now, limit, offset)
	if err != nil {
		return nil, err
	}
	return tenders, nil
}

// CancelTender переводит тендер {open,quoted} -> cancelled.
// Запись не удаляется: отмена — это статус, история сохраняется.
func (s *Storage) CancelTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error) {
	return s.conditionalTenderTransition(ctx, tenderID, landlordID, models.TenderCancelled,
		func(t *models.Tender) bool { return t.AcceptsQuotes() })
}

// CompleteTender переводит тендер assigned -> completed (внешний триггер
// "работы приняты")
func (s *Storage) CompleteTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error) {
	return s.conditionalTenderTransition(ctx, tenderID, landlordID, models.TenderCompleted,
		func(t *models.Tender) bool { return t.Status == models.TenderAssigned })
}

func (s *Storage) conditionalTenderTransition(ctx context.Context, tenderID int, landlordID string, to models.TenderStatus, allowed func(*models.Tender) bool) (*models.Tender, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t := &models.Tender{}
	err = tx.GetContext(ctx, t, `SELECT * FROM tenders WHERE id=$1 FOR UPDATE`, tenderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenderNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.LandlordID != landlordID {
		return nil, ErrNotAuthorized
	}
	if !allowed(t) {
		return nil, ErrInvalidState
	}

	from := t.Status
	if _, err := tx.ExecContext(ctx, `UPDATE tenders SET status=$1 WHERE id=$2`, to, tenderID); err != nil {
		return nil, err
	}
	if err := insertTransition(ctx, tx, tenderID, from, to, landlordID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	t.Status = to
	return t, nil
}

// SweepExpiredTenders закрывает тендеры с истекшим дедлайном.
// Повторный запуск с тем же now ничего не меняет: условие выборки после
// первого прохода больше не выполняется.
func (s *Storage) SweepExpiredTenders(ctx context.Context, now time.Time) ([]models.Tender, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Блокируем строки, чтобы гонка с acceptQuote решалась на уровне БД:
	// кто первым зафиксировался, тот и выиграл.
	expired := []models.Tender{}
	query := `
        SELECT * FROM tenders
        WHERE status IN ('open', 'quoted') AND deadline < $1
        FOR UPDATE`
	if err := tx.SelectContext(ctx, &expired, query, now); err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]int64, len(expired))
	for i, t := range expired {
		ids[i] = int64(t.ID)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tenders SET status='expired' WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for i := range expired {
		if err := insertTransition(ctx, tx, expired[i].ID, expired[i].Status, models.TenderExpired, "sweeper"); err != nil {
			return nil, err
		}
		expired[i].Status = models.TenderExpired
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("expired tenders swept", zap.Int("count", len(expired)))
	return expired, nil
}

// GetTenderTransitions возвращает журнал переходов статуса тендера
func (s *Storage) GetTenderTransitions(ctx context.Context, tenderID int) ([]models.TenderTransition, error) {
	if _, err := s.GetTender(ctx, tenderID); err != nil {
		return nil, err
	}
	transitions := []models.TenderTransition{}
	query := `SELECT * FROM tender_transitions WHERE tender_id=$1 ORDER BY id ASC`
	err := s.db.SelectContext(ctx, &transitions, query, tenderID)
	return transitions, err
}

func insertTransition(ctx context.Context, tx *sqlx.Tx, tenderID int, from, to models.TenderStatus, actor string) error {
	query := `
        INSERT INTO tender_transitions (tender_id, from_status, to_status, actor)
        VALUES ($1, $2, $3, $4)`
	_, err := tx.ExecContext(ctx, query, tenderID, from, to, actor)
	return err
}

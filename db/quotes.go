package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"marketplace/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// CreateQuote вставляет предложение со статусом pending.
// Предусловия (тендер открыт, дедлайн не прошёл, нет активного дубля)
// проверяются в одной транзакции с блокировкой строки тендера, чтобы
// вставка не проскочила мимо параллельного acceptQuote или свипера.
func (s *Storage) CreateQuote(ctx context.Context, q *models.Quote, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Сразу FOR UPDATE: дальше возможен переход open -> quoted, а
	// апгрейд share-блокировки до эксклюзивной ловит дедлок на двух
	// первых одновременных подачах
	t := &models.Tender{}
	err = tx.GetContext(ctx, t, `SELECT * FROM tenders WHERE id=$1 FOR UPDATE`, q.TenderID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTenderNotFound
	}
	if err != nil {
		return err
	}
	if !t.AcceptsQuotes() {
		return ErrTenderClosed
	}
	if !now.Before(t.Deadline) {
		return ErrDeadlinePassed
	}

	q.Status = models.QuotePending
	query := `
        INSERT INTO quotes
            (tender_id, contractor_id, amount_pence, description, estimated_hours,
             materials_included, materials_cost_pence, available_from, warranty_days, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, submitted_at`
	err = tx.QueryRowContext(ctx, query,
		q.TenderID, q.ContractorID, q.AmountPence, q.Description, q.EstimatedHours,
		q.MaterialsIncluded, q.MaterialsCostPence, q.AvailableFrom, q.WarrantyDays, q.Status).
		Scan(&q.ID, &q.SubmittedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateQuote
	}
	if err != nil {
		return err
	}

	// open -> quoted, идемпотентно: на уже quoted тендере условие не сработает
	if t.Status == models.TenderOpen {
		if _, err := tx.ExecContext(ctx,
			`UPDATE tenders SET status='quoted' WHERE id=$1 AND status='open'`, q.TenderID); err != nil {
			return err
		}
		if err := insertTransition(ctx, tx, q.TenderID, models.TenderOpen, models.TenderQuoted, q.ContractorID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) GetQuote(ctx context.Context, id int) (*models.Quote, error) {
	q := &models.Quote{}
	query := `SELECT * FROM quotes WHERE id=$1`
	err := s.db.GetContext(ctx, q, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	return q, err
}

// AcceptQuote — единственная операция, переводящая предложение в accepted.
// Блокировка FOR UPDATE на строке тендера сериализует конкурирующие вызовы:
// проигравший после коммита победителя видит статус assigned и получает
// ErrInvalidState. Победитель, проигравшие и тендер меняются одной
// транзакцией, частичных состояний снаружи не видно.
func (s *Storage) AcceptQuote(ctx context.Context, tenderID, quoteID int) (*models.Quote, []models.Quote, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	t := &models.Tender{}
	err = tx.GetContext(ctx, t, `SELECT * FROM tenders WHERE id=$1 FOR UPDATE`, tenderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrTenderNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if !t.AcceptsQuotes() {
		return nil, nil, ErrInvalidState
	}

	// Строку предложения тоже блокируем: параллельный отзыв берет
	// только её и блокировкой тендера не сериализуется
	winner := &models.Quote{}
	err = tx.GetContext(ctx, winner, `SELECT * FROM quotes WHERE id=$1 AND tender_id=$2 FOR UPDATE`, quoteID, tenderID)
	if errors.Is(err, sql.ErrNoRows) {
		// нет такого предложения либо оно от другого тендера
		return nil, nil, ErrInvalidState
	}
	if err != nil {
		return nil, nil, err
	}
	if winner.Status != models.QuotePending {
		return nil, nil, ErrInvalidState
	}

	// Отклонение конкурентов — следствие принятия, без отдельной
	// авторизации; одним условным UPDATE, а не построчно
	losers := []models.Quote{}
	rejectQuery := `
        UPDATE quotes SET status='rejected'
        WHERE tender_id=$1 AND id<>$2 AND status='pending'
        RETURNING *`
	if err := tx.SelectContext(ctx, &losers, rejectQuery, tenderID, quoteID); err != nil {
		return nil, nil, err
	}

	// Условие status='pending' — страховка от записи поверх статуса,
	// изменившегося после нашего чтения
	res, err := tx.ExecContext(ctx, `UPDATE quotes SET status='accepted' WHERE id=$1 AND status='pending'`, quoteID)
	if err != nil {
		return nil, nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if affected == 0 {
		return nil, nil, ErrInvalidState
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tenders SET status='assigned' WHERE id=$1`, tenderID); err != nil {
		return nil, nil, err
	}
	if err := insertTransition(ctx, tx, tenderID, t.Status, models.TenderAssigned, t.LandlordID); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	winner.Status = models.QuoteAccepted
	s.logger.Info("quote accepted",
		zap.Int("tender_id", tenderID),
		zap.Int("quote_id", quoteID),
		zap.Int("rejected", len(losers)))
	return winner, losers, nil
}

// RankQuotes возвращает предложения тендера: сначала принятое, затем
// pending по времени подачи, затем отклонённые и отозванные.
// Предложения вне бюджетной вилки помечаются флагом outOfBudget.
func (s *Storage) RankQuotes(ctx context.Context, tenderID int) ([]models.RankedQuote, error) {
	if _, err := s.GetTender(ctx, tenderID); err != nil {
		return nil, err
	}

	query := `
        SELECT q.*,
               (q.amount_pence < t.budget_min_pence OR q.amount_pence > t.budget_max_pence) AS out_of_budget
        FROM quotes q
        JOIN tenders t ON t.id = q.tender_id
        WHERE q.tender_id = $1
        ORDER BY
            CASE q.status
                WHEN 'accepted' THEN 0
                WHEN 'pending' THEN 1
                WHEN 'rejected' THEN 2
                ELSE 3
            END,
            q.submitted_at ASC,
            q.id ASC`
	quotes := []models.RankedQuote{}
	err := s.db.SelectContext(ctx, &quotes, query, tenderID)
	return quotes, err
}

// WithdrawQuote — отзыв подрядчиком своего pending-предложения
func (s *Storage) WithdrawQuote(ctx context.Context, quoteID int, contractorID string) (*models.Quote, error) {
	q := &models.Quote{}
	query := `
        UPDATE quotes SET status='withdrawn'
        WHERE id=$1 AND contractor_id=$2 AND status='pending'
        RETURNING *`
	err := s.db.GetContext(ctx, q, query, quoteID, contractorID)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Условный UPDATE не сработал — выясняем, какую именно ошибку отдать
	existing, gerr := s.GetQuote(ctx, quoteID)
	if gerr != nil {
		return nil, gerr
	}
	if existing.ContractorID != contractorID {
		return nil, ErrNotAuthorized
	}
	return nil, ErrInvalidState
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

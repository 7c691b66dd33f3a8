package directory

import (
	"context"
	"database/sql"
	"errors"

	"marketplace/models"

	"github.com/jmoiron/sqlx"
)

var ErrPropertyNotFound = errors.New("property not found")

// Directory — интерфейс внешнего сервиса профилей и объектов.
// Здесь нам нужны ровно два ответа: специализации подрядчика и
// владелец объекта.
type Directory interface {
	TradesForContractor(ctx context.Context, contractorID string) ([]models.TradeCategory, error)
	LandlordForProperty(ctx context.Context, propertyID string) (string, error)
}

// PostgresDirectory читает таблицы справочника, которые ведёт внешний
// сервис в той же базе
type PostgresDirectory struct {
	db *sqlx.DB
}

func NewPostgresDirectory(db *sqlx.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) TradesForContractor(ctx context.Context, contractorID string) ([]models.TradeCategory, error) {
	trades := []models.TradeCategory{}
	query := `SELECT trade FROM contractor_trades WHERE contractor_id=$1`
	err := d.db.SelectContext(ctx, &trades, query, contractorID)
	return trades, err
}

func (d *PostgresDirectory) LandlordForProperty(ctx context.Context, propertyID string) (string, error) {
	var landlordID string
	query := `SELECT landlord_id FROM properties WHERE id=$1`
	err := d.db.GetContext(ctx, &landlordID, query, propertyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrPropertyNotFound
	}
	return landlordID, err
}

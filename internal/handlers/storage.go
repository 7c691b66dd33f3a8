package handlers

import (
	"context"
	"time"

	"marketplace/models"
)

type StorageInterface interface {
	CreateTender(ctx context.Context, tender *models.Tender) error
	GetTender(ctx context.Context, tenderID int) (*models.Tender, error)
	ListOpenTendersForTrades(ctx context.Context, trades []models.TradeCategory, now time.Time, limit, offset int) ([]models.Tender, error)
	CancelTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error)
	CompleteTender(ctx context.Context, tenderID int, landlordID string) (*models.Tender, error)
	GetTenderTransitions(ctx context.Context, tenderID int) ([]models.TenderTransition, error)

	CreateQuote(ctx context.Context, quote *models.Quote, now time.Time) error
	GetQuote(ctx context.Context, quoteID int) (*models.Quote, error)
	AcceptQuote(ctx context.Context, tenderID, quoteID int) (*models.Quote, []models.Quote, error)
	RankQuotes(ctx context.Context, tenderID int) ([]models.RankedQuote, error)
	WithdrawQuote(ctx context.Context, quoteID int, contractorID string) (*models.Quote, error)

	SweepExpiredTenders(ctx context.Context, now time.Time) ([]models.Tender, error)
}

package models

import "time"

// TradeCategory — закрытый перечень специализаций подрядчиков
type TradeCategory string

const (
	TradePlumbing   TradeCategory = "plumbing"
	TradeElectrical TradeCategory = "electrical"
	TradeHeating    TradeCategory = "heating"
	TradeCarpentry  TradeCategory = "carpentry"
	TradeGeneral    TradeCategory = "general"
	TradeOther      TradeCategory = "other"
)

func ValidTradeCategory(t TradeCategory) bool {
	switch t {
	case TradePlumbing, TradeElectrical, TradeHeating, TradeCarpentry, TradeGeneral, TradeOther:
		return true
	default:
		return false
	}
}

// TradeLabel возвращает отображаемое название специализации
func TradeLabel(t TradeCategory) string {
	switch t {
	case TradePlumbing:
		return "Plumbing"
	case TradeElectrical:
		return "Electrical"
	case TradeHeating:
		return "Heating & Gas"
	case TradeCarpentry:
		return "Carpentry & Joinery"
	case TradeGeneral:
		return "General Maintenance"
	case TradeOther:
		return "Other"
	default:
		return string(t)
	}
}

type TenderStatus string

const (
	TenderOpen      TenderStatus = "open"
	TenderQuoted    TenderStatus = "quoted"
	TenderAssigned  TenderStatus = "assigned"
	TenderCompleted TenderStatus = "completed"
	TenderExpired   TenderStatus = "expired"
	TenderCancelled TenderStatus = "cancelled"
)

func ValidTenderStatus(s TenderStatus) bool {
	switch s {
	case TenderOpen, TenderQuoted, TenderAssigned, TenderCompleted, TenderExpired, TenderCancelled:
		return true
	default:
		return false
	}
}

type QuoteStatus string

const (
	QuotePending   QuoteStatus = "pending"
	QuoteAccepted  QuoteStatus = "accepted"
	QuoteRejected  QuoteStatus = "rejected"
	QuoteWithdrawn QuoteStatus = "withdrawn"
)

func ValidQuoteStatus(s QuoteStatus) bool {
	switch s {
	case QuotePending, QuoteAccepted, QuoteRejected, QuoteWithdrawn:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Tender — заявка арендодателя на работы по объекту.
// Суммы храним в пенсах, чтобы не связываться с плавающей точкой.
type Tender struct {
	ID             int           `db:"id" json:"id"`
	PropertyID     string        `db:"property_id" json:"propertyId"`
	LandlordID     string        `db:"landlord_id" json:"landlordId"`
	Trade          TradeCategory `db:"trade" json:"trade"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description"`
	Priority       Priority      `db:"priority" json:"priority"`
	BudgetMinPence int64         `db:"budget_min_pence" json:"budgetMinPence"`
	BudgetMaxPence int64         `db:"budget_max_pence" json:"budgetMaxPence"`
	Deadline       time.Time     `db:"deadline" json:"deadline"`
	Status         TenderStatus  `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
}

// AcceptsQuotes — тендер ещё принимает предложения
func (t *Tender) AcceptsQuotes() bool {
	return t.Status == TenderOpen || t.Status == TenderQuoted
}

// Quote — предложение подрядчика по тендеру
type Quote struct {
	ID                 int         `db:"id" json:"id"`
	TenderID           int         `db:"tender_id" json:"tenderId"`
	ContractorID       string      `db:"contractor_id" json:"contractorId"`
	AmountPence        int64       `db:"amount_pence" json:"amountPence"`
	Description        string      `db:"description" json:"description"`
	EstimatedHours     *int        `db:"estimated_hours" json:"estimatedHours,omitempty"`
	MaterialsIncluded  bool        `db:"materials_included" json:"materialsIncluded"`
	MaterialsCostPence *int64      `db:"materials_cost_pence" json:"materialsCostPence,omitempty"`
	AvailableFrom      time.Time   `db:"available_from" json:"availableFrom"`
	WarrantyDays       int         `db:"warranty_days" json:"warrantyDays"`
	Status             QuoteStatus `db:"status" json:"status"`
	SubmittedAt        time.Time   `db:"submitted_at" json:"submittedAt"`
}

// OutOfBudget — предложение вне бюджетной вилки тендера.
// Вилка носит рекомендательный характер: такие предложения не
// отклоняются, а только помечаются для арендодателя.
func (q *Quote) OutOfBudget(t *Tender) bool {
	return q.AmountPence < t.BudgetMinPence || q.AmountPence > t.BudgetMaxPence
}

// RankedQuote — предложение в выдаче для арендодателя
type RankedQuote struct {
	Quote
	OutOfBudget bool `db:"out_of_budget" json:"outOfBudget"`
}

// TenderTransition — запись журнала переходов статуса тендера
type TenderTransition struct {
	ID         int          `db:"id" json:"id"`
	TenderID   int          `db:"tender_id" json:"tenderId"`
	FromStatus TenderStatus `db:"from_status" json:"fromStatus"`
	ToStatus   TenderStatus `db:"to_status" json:"toStatus"`
	Actor      string       `db:"actor" json:"actor"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
}

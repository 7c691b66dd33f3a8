package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	EventQuoteReceived = "quote_received"
	EventQuoteAccepted = "quote_accepted"
	EventQuoteRejected = "quote_rejected"
	EventTenderExpired = "tender_expired"
)

// Event — событие жизненного цикла для внешнего диспетчера уведомлений
type Event struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	TenderID    int               `json:"tenderId"`
	QuoteID     int               `json:"quoteId,omitempty"`
	RecipientID string            `json:"recipientId"`
	Payload     map[string]string `json:"payload,omitempty"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

// NewEvent заполняет id и время события
func NewEvent(eventType string, tenderID, quoteID int, recipientID string, payload map[string]string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		TenderID:    tenderID,
		QuoteID:     quoteID,
		RecipientID: recipientID,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}

// Publisher отправляет события fire-and-forget. Доставка не влияет на
// результат операции: состояние в базе первично, уведомление вторично.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// NATSPublisher публикует события в marketplace.events.<type>
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATSPublisher(conn *nats.Conn, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, logger: logger}
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}
	if err := p.conn.Publish("marketplace.events."+event.Type, data); err != nil {
		// Ошибку доставки глушим: откатывать состояние из-за
		// уведомления нельзя
		p.logger.Warn("failed to publish event",
			zap.String("type", event.Type),
			zap.Int("tender_id", event.TenderID),
			zap.Error(err))
	}
}

// Noop — заглушка для тестов и запуска без NATS
type Noop struct{}

func (Noop) Publish(ctx context.Context, event Event) {}

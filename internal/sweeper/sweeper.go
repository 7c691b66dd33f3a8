package sweeper

import (
	"context"
	"time"

	"marketplace/internal/metrics"
	"marketplace/internal/notify"
	"marketplace/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Store — кусок хранилища, нужный свиперу
type Store interface {
	SweepExpiredTenders(ctx context.Context, now time.Time) ([]models.Tender, error)
}

// Sweeper периодически закрывает тендеры с истекшим дедлайном.
// Предложения по ним не трогаем: pending-предложения просто перестают
// быть принимаемыми.
type Sweeper struct {
	store     Store
	publisher notify.Publisher
	logger    *zap.Logger
	cron      *cron.Cron
}

func New(store Store, publisher notify.Publisher, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Start запускает свип по cron-расписанию, например "@every 1m"
func (s *Sweeper) Start(schedule string) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunOnce(context.Background(), time.Now()); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunOnce выполняет один проход свипа. Идемпотентно: повторный вызов с
// тем же now ничего не закрывает и не шлёт событий.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) error {
	expired, err := s.store.SweepExpiredTenders(ctx, now)
	if err != nil {
		return err
	}
	for _, t := range expired {
		metrics.TendersExpired.Inc()
		s.publisher.Publish(ctx, notify.NewEvent(notify.EventTenderExpired, t.ID, 0, t.LandlordID, map[string]string{
			"title": t.Title,
		}))
	}
	if len(expired) > 0 {
		s.logger.Info("sweep finished",
			zap.Time("now", now),
			zap.Int("expired", len(expired)))
	}
	return nil
}

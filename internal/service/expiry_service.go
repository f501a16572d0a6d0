package service

import (
	"context"
	"sync"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/repository"
	"github.com/Baaaki/mealmender/internal/urgency"
	"github.com/Baaaki/mealmender/pkg/logger"
	"go.uber.org/zap"
)

// ExpiryNotifier fires the one-time warning for a donation. It must write
// through tx.
type ExpiryNotifier interface {
	NotifyExpiring(ctx context.Context, tx *repository.Store, d *models.Donation, now time.Time) (*models.Notification, error)
}

type SweepResult struct {
	Checked  int `json:"checked"`
	Updated  int `json:"updated"`
	Expired  int `json:"expired"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// ExpiryService keeps persisted urgency, expiry status and the notification
// latch in line with the wall clock.
type ExpiryService struct {
	store    *repository.Store
	notifier ExpiryNotifier
	interval time.Duration
	now      func() time.Time

	mu sync.Mutex // one sweep at a time
}

func NewExpiryService(store *repository.Store, notifier ExpiryNotifier, interval time.Duration) *ExpiryService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ExpiryService{
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start sweeps once right away and then on every tick until ctx is done.
func (s *ExpiryService) Start(ctx context.Context) {
	go s.Run(ctx)
}

func (s *ExpiryService) Run(ctx context.Context) {
	logger.Log.Info("Expiry sweeper started", zap.Duration("interval", s.interval))

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ExpiryService) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	res, err := s.Sweep(tickCtx)
	if err != nil {
		logger.Log.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if res.Updated > 0 || res.Notified > 0 || res.Failed > 0 {
		logger.Log.Info("Expiry sweep finished",
			zap.Int("checked", res.Checked),
			zap.Int("updated", res.Updated),
			zap.Int("expired", res.Expired),
			zap.Int("notified", res.Notified),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Sweep walks every available, not yet expired donation once. A failure on
// one donation is logged and counted; the rest are still processed.
func (s *ExpiryService) Sweep(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SweepResult
	donations, err := s.store.Donations.ListSweepCandidates(ctx)
	if err != nil {
		return res, err
	}

	now := s.now()
	for _, d := range donations {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		if err := s.sweepOne(ctx, d, now, &res); err != nil {
			res.Failed++
			logger.Log.Error("Expiry sweep failed for donation",
				zap.String("donation_id", d.ID.String()),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

func (s *ExpiryService) sweepOne(ctx context.Context, d *models.Donation, now time.Time, res *SweepResult) error {
	level := urgency.Classify(d.Expiry, now)

	if level == urgency.Expired {
		rows, err := s.store.Donations.MarkExpired(ctx, d.ID, level)
		if err != nil {
			return err
		}
		if rows == 1 {
			res.Expired++
			res.Updated++
			logger.Log.Info("Donation expired",
				zap.String("donation_id", d.ID.String()),
				zap.String("food_name", d.FoodName),
			)
		}
		return nil
	}

	if level != d.UrgencyLevel {
		rows, err := s.store.Donations.UpdateUrgency(ctx, d.ID, level)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Claimed since the candidate list was read.
			return nil
		}
		res.Updated++
	}

	if d.ExpiryNotificationSent || !urgency.InNotifyWindow(d.Expiry, now) || s.notifier == nil {
		return nil
	}

	// Latch and notification commit together; whoever flips the latch notifies.
	notified := false
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		rows, err := tx.Donations.ClaimExpiryLatch(ctx, d.ID, now)
		if err != nil || rows == 0 {
			return err
		}
		if _, err := s.notifier.NotifyExpiring(ctx, tx, d, now); err != nil {
			return err
		}
		notified = true
		return nil
	})
	if err != nil {
		return err
	}
	if notified {
		res.Notified++
	}
	return nil
}

// UrgencyStats counts available donations per stored urgency level. Every
// level is present in the result, zero when no donation has it.
func (s *ExpiryService) UrgencyStats(ctx context.Context) (map[string]int64, error) {
	counts, err := s.store.Donations.CountAvailableByUrgency(ctx)
	if err != nil {
		return nil, errInternal(err)
	}
	out := map[string]int64{
		string(urgency.Safe):    0,
		string(urgency.Warning): 0,
		string(urgency.Urgent):  0,
		string(urgency.Expired): 0,
	}
	for level, n := range counts {
		out[level] = n
	}
	return out, nil
}

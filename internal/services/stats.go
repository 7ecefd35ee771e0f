package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"anonhost/internal/cache"
	"anonhost/internal/metrics"
	"anonhost/internal/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// StatsTTL is how long global counts are served from the memo.
const StatsTTL = time.Hour

type Stats struct {
	Users   int64 `json:"users"`
	Uploads int64 `json:"uploads"`
	Storage int64 `json:"storage"`
}

type StatsService struct {
	db      *gorm.DB
	memo    *cache.Memo[Stats]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewStatsService(db *gorm.DB, memo *cache.Memo[Stats], logger *slog.Logger, m *metrics.Metrics) *StatsService {
	if memo == nil {
		memo = cache.NewMemo[Stats](StatsTTL, nil)
	}
	return &StatsService{
		db:      db,
		memo:    memo,
		logger:  logger,
		metrics: m,
	}
}

func (s *StatsService) GetStats(ctx context.Context) (Stats, error) {
	stats, hit, err := s.memo.GetOrCompute(func() (Stats, error) {
		return s.compute(ctx)
	})
	if err != nil {
		s.logger.Error("Failed to compute stats", "error", err)
		return Stats{}, err
	}
	if hit {
		s.metrics.StatsMemo.WithLabelValues("hit").Inc()
	} else {
		s.metrics.StatsMemo.WithLabelValues("miss").Inc()
	}
	return stats, nil
}

func (s *StatsService) compute(ctx context.Context) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.User{}).Count(&stats.Users).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Media{}).
			Where("status = ?", models.MediaActive).
			Count(&stats.Uploads).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Media{}).
			Where("status = ?", models.MediaActive).
			Select("COALESCE(SUM(size), 0)").
			Scan(&stats.Storage).Error
	})

	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return stats, nil
}

package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
	"go.uber.org/zap"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Store interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
}

// SnapshotLoader returns the last saved snapshot, or nil if there is none.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)
}

type KfWSiteCrawler interface {
	Crawl(ctx context.Context) model.KfWSection
}

type InterhypSiteCrawler interface {
	Crawl(ctx context.Context) model.InterhypSection
}

type Service struct {
	kfw      KfWSiteCrawler
	interhyp InterhypSiteCrawler
	previous SnapshotLoader
	stores   []Store
	now      func() time.Time
	logger   *zap.Logger
}

// NewService wires both site crawlers to the stores. previous may be nil,
// which disables the change report.
func NewService(kfw KfWSiteCrawler, interhyp InterhypSiteCrawler, previous SnapshotLoader, stores []Store, logger *zap.Logger) *Service {
	return &Service{
		kfw:      kfw,
		interhyp: interhyp,
		previous: previous,
		stores:   stores,
		now:      time.Now,
		logger:   logger,
	}
}

// Crawl runs both crawlers one after the other and saves the combined
// snapshot to every store in order. Crawler failures end up inside the
// snapshot; only store failures are returned.
func (s *Service) Crawl(ctx context.Context) (*model.Snapshot, error) {
	s.logger.Info("starting crawl")

	kfw := s.kfw.Crawl(ctx)
	s.logger.Debug("KfW crawler finished", zap.String("quality", string(kfw.DataQuality)))

	interhyp := s.interhyp.Crawl(ctx)
	s.logger.Debug("Interhyp crawler finished", zap.String("quality", string(interhyp.DataQuality)))

	now := s.now()
	snap := model.Snapshot{
		Updated:   now.Format(model.UpdatedLayout),
		KfW:       kfw,
		Interhyp:  interhyp,
		CrawledAt: now,
	}

	s.reportChanges(ctx, snap)

	for _, store := range s.stores {
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			return &snap, fmt.Errorf("failed to save snapshot: %w", err)
		}
	}

	s.logger.Info("all crawlers finished, snapshot saved",
		zap.String("kfw", string(kfw.DataQuality)),
		zap.String("interhyp", string(interhyp.DataQuality)),
	)
	return &snap, nil
}

package crawler

import (
	"context"

	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
	"go.uber.org/zap"
)

type rateChange struct {
	name     string
	old, new *float64
}

func (s *Service) reportChanges(ctx context.Context, snap model.Snapshot) {
	if s.previous == nil {
		return
	}
	prev, err := s.previous.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn("failed to load previous snapshot, skipping change report", zap.Error(err))
		return
	}
	if prev == nil {
		s.logger.Info("no previous snapshot, first run")
		return
	}

	changes := diffRates(*prev, snap)
	if len(changes) == 0 {
		s.logger.Info("no rate changes since last update", zap.String("previous", prev.Updated))
		return
	}
	for _, c := range changes {
		s.logger.Info("rate changed",
			zap.String("rate", c.name),
			zap.Float64p("old", c.old),
			zap.Float64p("new", c.new),
			zap.String("previous", prev.Updated),
		)
	}
}

// diffRates compares the KfW nominal rates and the Interhyp rate.
func diffRates(old, cur model.Snapshot) []rateChange {
	var changes []rateChange
	for _, b := range model.Buckets {
		var o, n *float64
		if r, ok := old.KfW.Rates[b.Key]; ok {
			o = r.NominalRate
		}
		if r, ok := cur.KfW.Rates[b.Key]; ok {
			n = r.NominalRate
		}
		if !sameRate(o, n) {
			changes = append(changes, rateChange{name: "kfw/" + string(b.Key), old: o, new: n})
		}
	}

	o, n := old.Interhyp.Rates.TenYears.Rate, cur.Interhyp.Rates.TenYears.Rate
	if !sameRate(o, n) {
		changes = append(changes, rateChange{name: "interhyp/zinsbindung_10", old: o, new: n})
	}
	return changes
}

func sameRate(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

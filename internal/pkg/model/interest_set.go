package model

import (
	"time"

	"cloud.google.com/go/civil"
)

const (
	BankKfW      Bank = "KfW"
	BankInterhyp Bank = "Interhyp"

	Term4to10years  Term = "4-10y"
	Term11to25years Term = "11-25y"
	Term26to35years Term = "26-35y"
	Term10yearsLock Term = "10y-lock"
)

type Bank string
type Term string

// InterestSet is one flattened rate row, the shape the database store keeps.
type InterestSet struct {
	Bank          Bank
	Term          Term
	NominalRate   *float64
	EffectiveRate *float64
	Quality       DataQuality
	ChangedOn     civil.Date
	LastCrawledAt time.Time
}

// InterestSets flattens the snapshot into one row per KfW bucket plus the Interhyp rate.
func (s Snapshot) InterestSets() []InterestSet {
	changedOn := civil.DateOf(s.CrawledAt)
	if s.KfW.Stand != nil {
		changedOn = *s.KfW.Stand
	}

	sets := make([]InterestSet, 0, len(Buckets)+1)
	for _, b := range Buckets {
		rate, ok := s.KfW.Rates[b.Key]
		if !ok {
			continue
		}
		sets = append(sets, InterestSet{
			Bank:          BankKfW,
			Term:          b.Term,
			NominalRate:   rate.NominalRate,
			EffectiveRate: rate.EffectiveRate,
			Quality:       s.KfW.DataQuality,
			ChangedOn:     changedOn,
			LastCrawledAt: s.CrawledAt,
		})
	}

	sets = append(sets, InterestSet{
		Bank:          BankInterhyp,
		Term:          Term10yearsLock,
		NominalRate:   s.Interhyp.Rates.TenYears.Rate,
		Quality:       s.Interhyp.DataQuality,
		ChangedOn:     civil.DateOf(s.CrawledAt),
		LastCrawledAt: s.CrawledAt,
	})
	return sets
}

package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

const (
	Bucket4to10  BucketKey = "4-10_jahre"
	Bucket11to25 BucketKey = "11-25_jahre"
	Bucket26to35 BucketKey = "26-35_jahre"

	QualityScraped     DataQuality = "scraped"
	QualityPlaceholder DataQuality = "placeholder"
	QualityError       DataQuality = "error"

	// UpdatedLayout is the timestamp layout of Snapshot.Updated.
	UpdatedLayout = "2006-01-02 15:04:05"
)

type BucketKey string

// DataQuality tells consumers whether a section holds scraped values,
// configured placeholders or nothing usable.
type DataQuality string

// Bucket describes one fixed KfW loan-term bucket. Only the rates of a
// bucket ever change, the descriptive fields are constants.
type Bucket struct {
	Key                BucketKey
	Term               Term
	TermLabel          string
	RateLockYears      string
	InterestFreePeriod string
	// MinYears and MaxYears are the term boundaries as they appear in page text.
	MinYears string
	MaxYears string
}

var Buckets = []Bucket{
	{
		Key:                Bucket4to10,
		Term:               Term4to10years,
		TermLabel:          "4 bis 10 Jahre",
		RateLockYears:      "10 Jahre",
		InterestFreePeriod: "1 bis 2 Jahre",
		MinYears:           "4",
		MaxYears:           "10",
	},
	{
		Key:                Bucket11to25,
		Term:               Term11to25years,
		TermLabel:          "11 bis 25 Jahre",
		RateLockYears:      "10 Jahre",
		InterestFreePeriod: "1 bis 3 Jahre",
		MinYears:           "11",
		MaxYears:           "25",
	},
	{
		Key:                Bucket26to35,
		Term:               Term26to35years,
		TermLabel:          "26 bis 35 Jahre",
		RateLockYears:      "10 Jahre",
		InterestFreePeriod: "1 bis 5 Jahre",
		MinYears:           "26",
		MaxYears:           "35",
	},
}

type RateBucket struct {
	TermLabel          string   `json:"laufzeit"`
	RateLockYears      string   `json:"zinsbindung"`
	InterestFreePeriod string   `json:"tilgungsfrei"`
	NominalRate        *float64 `json:"sollzins"`
	EffectiveRate      *float64 `json:"effektivzins"`
}

type KfWRates map[BucketKey]*RateBucket

// NewKfWRates returns the three buckets with both rates set to 0.0, the
// marker for "not found yet".
func NewKfWRates() KfWRates {
	rates := NewNullKfWRates()
	for _, r := range rates {
		r.NominalRate = Rate(0)
		r.EffectiveRate = Rate(0)
	}
	return rates
}

// NewNullKfWRates returns the three buckets with null rates.
func NewNullKfWRates() KfWRates {
	rates := make(KfWRates, len(Buckets))
	for _, b := range Buckets {
		rates[b.Key] = &RateBucket{
			TermLabel:          b.TermLabel,
			RateLockYears:      b.RateLockYears,
			InterestFreePeriod: b.InterestFreePeriod,
		}
	}
	return rates
}

// Untouched reports whether no bucket received a nominal rate other than 0.0.
func (r KfWRates) Untouched() bool {
	for _, b := range r {
		if b.NominalRate != nil && *b.NominalRate != 0 {
			return false
		}
	}
	return true
}

// Uniform reports whether all buckets carry the same non-null nominal rate.
func (r KfWRates) Uniform() bool {
	var first *float64
	for _, b := range Buckets {
		bucket, ok := r[b.Key]
		if !ok || bucket.NominalRate == nil {
			return false
		}
		if first == nil {
			first = bucket.NominalRate
			continue
		}
		if *bucket.NominalRate != *first {
			return false
		}
	}
	return first != nil
}

// MarshalJSON writes the buckets in Buckets order, shortest term first.
// Keys outside Buckets follow in sorted order.
func (r KfWRates) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	keys := make([]BucketKey, 0, len(r))
	known := make(map[BucketKey]bool, len(Buckets))
	for _, b := range Buckets {
		known[b.Key] = true
		if _, ok := r[b.Key]; ok {
			keys = append(keys, b.Key)
		}
	}
	var extra []BucketKey
	for key := range r {
		if !known[key] {
			extra = append(extra, key)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	keys = append(keys, extra...)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(string(key)); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if err := enc.Encode(r[key]); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RatePair is a nominal/effective rate pair in percent.
type RatePair struct {
	Nominal   float64
	Effective float64
}

type KfWSection struct {
	Program              string      `json:"program"`
	Rates                KfWRates    `json:"rates"`
	SourceURL            string      `json:"source_url"`
	Stand                *civil.Date `json:"stand,omitempty"`
	DataQuality          DataQuality `json:"data_quality"`
	ManualUpdateRequired bool        `json:"manual_update_required,omitempty"`
	Error                string      `json:"error,omitempty"`
	Message              string      `json:"message,omitempty"`
}

type InterhypRate struct {
	RateLockYears string   `json:"zinsbindung"`
	LoanToValue   string   `json:"beleihung"`
	Rate          *float64 `json:"zins"`
}

type InterhypRates struct {
	TenYears InterhypRate `json:"zinsbindung_10"`
}

// NewInterhypRates returns the 10 year / <90% bucket with the given rate.
func NewInterhypRates(rate *float64) InterhypRates {
	return InterhypRates{TenYears: InterhypRate{
		RateLockYears: "10 Jahre",
		LoanToValue:   "< 90%",
		Rate:          rate,
	}}
}

type InterhypSection struct {
	Rates                InterhypRates `json:"rates"`
	SourceURL            string        `json:"source_url"`
	DataQuality          DataQuality   `json:"data_quality"`
	ManualUpdateRequired bool          `json:"manual_update_required,omitempty"`
	Error                string        `json:"error,omitempty"`
}

type Snapshot struct {
	Updated  string          `json:"updated"`
	KfW      KfWSection      `json:"kfw"`
	Interhyp InterhypSection `json:"interhyp"`

	CrawledAt time.Time `json:"-"`
}

func Rate(v float64) *float64 {
	return &v
}

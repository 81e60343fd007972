package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
	"go.uber.org/zap"
)

// apiTerms maps the endpoint's laufzeit index to the buckets.
var apiTerms = map[string]model.BucketKey{
	"1": model.Bucket4to10,
	"2": model.Bucket11to25,
	"3": model.Bucket26to35,
}

// KfWAPISource reads the JSON rates endpoint KfW fills its product pages from.
type KfWAPISource struct {
	fetcher       Fetcher
	url           string
	programNumber string
	logger        *zap.Logger
}

func NewKfWAPISource(fetcher Fetcher, url, programNumber string, logger *zap.Logger) *KfWAPISource {
	return &KfWAPISource{fetcher: fetcher, url: url, programNumber: programNumber, logger: logger}
}

func (a *KfWAPISource) URL() string { return a.url }

// Rates returns all three buckets or an error. Effective rates stay null
// unless the endpoint lists them.
func (a *KfWAPISource) Rates(ctx context.Context) (model.KfWRates, error) {
	body, err := a.fetcher.Fetch(ctx, a.url)
	if err != nil {
		return nil, err
	}

	entries, err := decodeAPIEntries(body)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("decoded rates api response", zap.Int("entries", len(entries)))

	rates := model.NewNullKfWRates()
	found := make(map[model.BucketKey]bool, len(apiTerms))
	for _, e := range entries {
		if string(e.Program) != a.programNumber {
			continue
		}
		key, ok := apiTerms[string(e.Term)]
		if !ok || e.Nominal == "" {
			a.logger.Debug("skipping rates api entry", zap.String("laufzeit", string(e.Term)), zap.String("sollzins", string(e.Nominal)))
			continue
		}
		nominal, err := parseRate(string(e.Nominal))
		if err != nil {
			return nil, err
		}
		rates[key].NominalRate = model.Rate(nominal)
		if e.Effective != "" {
			effective, err := parseRate(string(e.Effective))
			if err != nil {
				return nil, err
			}
			rates[key].EffectiveRate = model.Rate(effective)
		}
		found[key] = true
	}

	if len(found) != len(apiTerms) {
		return nil, fmt.Errorf("rates api lists %d of %d terms for program %s", len(found), len(apiTerms), a.programNumber)
	}
	return rates, nil
}

type apiEntry struct {
	Program   looseString `json:"programm"`
	Term      looseString `json:"laufzeit"`
	Nominal   looseString `json:"sollzins"`
	Effective looseString `json:"effektivzins"`
}

// decodeAPIEntries accepts {"kfw": [...]}, a bare array and {"data": {"kfw": [...]}}.
func decodeAPIEntries(body []byte) ([]apiEntry, error) {
	var list []apiEntry
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		KfW  []apiEntry `json:"kfw"`
		Data *struct {
			KfW []apiEntry `json:"kfw"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode rates api response: %w", err)
	}
	switch {
	case wrapped.KfW != nil:
		return wrapped.KfW, nil
	case wrapped.Data != nil && wrapped.Data.KfW != nil:
		return wrapped.Data.KfW, nil
	}
	return nil, errors.New("unexpected rates api response format")
}

// looseString takes a JSON string or number, the endpoint uses both.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ymakhloufi/zins-compare/internal/pkg/fetch"
	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
	"github.com/ymakhloufi/zins-compare/internal/pkg/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubKfW struct{ section model.KfWSection }

func (s stubKfW) Crawl(context.Context) model.KfWSection { return s.section }

type stubInterhyp struct{ section model.InterhypSection }

func (s stubInterhyp) Crawl(context.Context) model.InterhypSection { return s.section }

type memoryStore struct {
	name  string
	err   error
	saved []model.Snapshot
	order *[]string
}

func (m *memoryStore) SaveSnapshot(_ context.Context, snap model.Snapshot) error {
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snap)
	return nil
}

type stubLoader struct {
	snap *model.Snapshot
	err  error
}

func (l stubLoader) LoadSnapshot(context.Context) (*model.Snapshot, error) { return l.snap, l.err }

var fixedNow = time.Date(2026, 2, 12, 3, 4, 5, 0, time.UTC)

func scrapedSections(kfwRate, interhypRate float64) (model.KfWSection, model.InterhypSection) {
	rates := model.NewKfWRates()
	rates[model.Bucket4to10].NominalRate = model.Rate(kfwRate)
	return model.KfWSection{Rates: rates, DataQuality: model.QualityScraped},
		model.InterhypSection{Rates: model.NewInterhypRates(model.Rate(interhypRate)), DataQuality: model.QualityScraped}
}

func newTestService(kfw model.KfWSection, interhyp model.InterhypSection, previous SnapshotLoader, stores []Store, logger *zap.Logger) *Service {
	svc := NewService(stubKfW{kfw}, stubInterhyp{interhyp}, previous, stores, logger)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestService_Crawl(t *testing.T) {
	kfw, interhyp := scrapedSections(0.01, 3.96)
	var order []string
	first := &memoryStore{name: "file", order: &order}
	second := &memoryStore{name: "console", order: &order}

	snap, err := newTestService(kfw, interhyp, nil, []Store{first, second}, zap.NewNop()).Crawl(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "2026-02-12 03:04:05", snap.Updated)
	assert.Equal(t, fixedNow, snap.CrawledAt)
	assert.Equal(t, kfw, snap.KfW)
	assert.Equal(t, interhyp, snap.Interhyp)
	assert.Equal(t, []string{"file", "console"}, order)
	require.Len(t, first.saved, 1)
	assert.Equal(t, *snap, first.saved[0])
}

func TestService_Crawl_StoreError(t *testing.T) {
	kfw, interhyp := scrapedSections(0.01, 3.96)
	var order []string
	failing := &memoryStore{name: "file", order: &order, err: errors.New("disk full")}
	next := &memoryStore{name: "console", order: &order}

	snap, err := newTestService(kfw, interhyp, nil, []Store{failing, next}, zap.NewNop()).Crawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save snapshot: disk full")
	require.NotNil(t, snap)
	assert.Equal(t, []string{"file"}, order)
	assert.Empty(t, next.saved)
}

func TestService_Crawl_ReportsChanges(t *testing.T) {
	oldKfW, oldInterhyp := scrapedSections(0.01, 3.96)
	previous := &model.Snapshot{Updated: "2026-02-11 03:00:00", KfW: oldKfW, Interhyp: oldInterhyp}

	kfw, interhyp := scrapedSections(0.05, 3.96)
	core, logs := observer.New(zap.InfoLevel)

	_, err := newTestService(kfw, interhyp, stubLoader{snap: previous}, nil, zap.New(core)).Crawl(context.Background())
	require.NoError(t, err)

	changed := logs.FilterMessage("rate changed").All()
	require.Len(t, changed, 1)
	fields := changed[0].ContextMap()
	assert.Equal(t, "kfw/4-10_jahre", fields["rate"])
	assert.Equal(t, 0.01, fields["old"])
	assert.Equal(t, 0.05, fields["new"])
}

func TestService_Crawl_ChangeReportEdgeCases(t *testing.T) {
	kfw, interhyp := scrapedSections(0.01, 3.96)

	tests := []struct {
		name    string
		loader  SnapshotLoader
		message string
	}{
		{name: "first run", loader: stubLoader{}, message: "no previous snapshot, first run"},
		{name: "load fails", loader: stubLoader{err: errors.New("bad json")}, message: "failed to load previous snapshot, skipping change report"},
		{
			name:    "unchanged",
			loader:  stubLoader{snap: &model.Snapshot{KfW: kfw, Interhyp: interhyp}},
			message: "no rate changes since last update",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			_, err := newTestService(kfw, interhyp, tt.loader, nil, zap.New(core)).Crawl(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, logs.FilterMessage(tt.message).Len())
			assert.Zero(t, logs.FilterMessage("rate changed").Len())
		})
	}
}

func TestDiffRates(t *testing.T) {
	oldKfW, oldInterhyp := scrapedSections(0.01, 3.96)
	old := model.Snapshot{KfW: oldKfW, Interhyp: oldInterhyp}

	cur := model.Snapshot{
		KfW:      model.KfWSection{Rates: model.NewNullKfWRates()},
		Interhyp: model.InterhypSection{Rates: model.NewInterhypRates(model.Rate(3.80))},
	}

	changes := diffRates(old, cur)
	require.Len(t, changes, 4)
	assert.Equal(t, "kfw/4-10_jahre", changes[0].name)
	assert.Nil(t, changes[0].new)
	assert.Equal(t, "interhyp/zinsbindung_10", changes[3].name)
	assert.Equal(t, 3.80, *changes[3].new)

	assert.Empty(t, diffRates(old, old))
}

func newSiteServer(t *testing.T, kfwStatus int) *httptest.Server {
	t.Helper()
	kfwBody := fixture(t, "kfw_konditionen.html")
	interhypBody := fixture(t, "interhyp_table.html")

	mux := http.NewServeMux()
	mux.HandleFunc("/kfw/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(kfwStatus)
		_, _ = w.Write(kfwBody)
	})
	mux.HandleFunc("/interhyp/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(interhypBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runEndToEnd(t *testing.T, srv *httptest.Server, out string, now time.Time) (*model.Snapshot, []byte) {
	t.Helper()
	logger := zap.NewNop()
	fetcher := fetch.NewHTTP(5*time.Second, "zins-compare-test", logger)

	kfwCfg := kfwConfig(t)
	kfwCfg.URL = srv.URL + "/kfw/"
	ihCfg := interhypConfig()
	ihCfg.URL = srv.URL + "/interhyp/"

	file := store.NewFile(out, logger)
	svc := NewService(
		NewKfWCrawler(fetcher, kfwCfg, logger),
		NewInterhypCrawler(fetcher, ihCfg, logger),
		file,
		[]Store{file},
		logger,
	)
	svc.now = func() time.Time { return now }

	snap, err := svc.Crawl(context.Background())
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return snap, data
}

func TestService_EndToEnd(t *testing.T) {
	srv := newSiteServer(t, http.StatusOK)
	out := filepath.Join(t.TempDir(), "data", "zinsen-kfw300.json")

	first, firstData := runEndToEnd(t, srv, out, fixedNow)
	second, secondData := runEndToEnd(t, srv, out, fixedNow.Add(24*time.Hour))

	assert.Equal(t, model.QualityScraped, first.KfW.DataQuality)
	assert.Equal(t, model.QualityScraped, first.Interhyp.DataQuality)
	assert.Equal(t, 1.09, *first.KfW.Rates[model.Bucket11to25].NominalRate)
	assert.Equal(t, 3.80, *first.Interhyp.Rates.TenYears.Rate)

	// same page, same rates, only the timestamp moves
	assert.Equal(t, first.KfW, second.KfW)
	assert.Equal(t, first.Interhyp, second.Interhyp)
	assert.NotEqual(t, first.Updated, second.Updated)
	assert.Contains(t, string(firstData), `"updated": "2026-02-12 03:04:05"`)
	assert.Contains(t, string(secondData), `"updated": "2026-02-13 03:04:05"`)
	assert.Equal(t,
		strings.Replace(string(firstData), "2026-02-12 03:04:05", "2026-02-13 03:04:05", 1),
		string(secondData),
	)
}

func TestService_EndToEnd_KfWDown(t *testing.T) {
	srv := newSiteServer(t, http.StatusServiceUnavailable)
	out := filepath.Join(t.TempDir(), "zinsen.json")

	snap, data := runEndToEnd(t, srv, out, fixedNow)

	assert.Equal(t, model.QualityError, snap.KfW.DataQuality)
	assert.True(t, snap.KfW.ManualUpdateRequired)
	assert.Contains(t, snap.KfW.Error, "503")
	assert.Equal(t, 3, strings.Count(string(data), `"sollzins": null`))
	assert.Contains(t, string(data), `"manual_update_required": true`)

	// the Interhyp section is unaffected
	assert.Equal(t, model.QualityScraped, snap.Interhyp.DataQuality)
	assert.Equal(t, 3.80, *snap.Interhyp.Rates.TenYears.Rate)
}

package crawler

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ymakhloufi/zins-compare/internal/pkg/config"
	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
	"go.uber.org/zap"
)

var (
	_ InterhypStrategy = InterhypTableStrategy{}
	_ InterhypStrategy = InterhypTextStrategy{}

	// cells often carry the number without the percent sign
	cellRatePattern = regexp.MustCompile(`(\d+[,.]\d{1,2})\s*%?`)
	lineRatePattern = regexp.MustCompile(`(\d+[,.]\d{2})\s*%`)
)

// InterhypStrategy is one way of finding the 10 year rate on the Interhyp page.
type InterhypStrategy interface {
	Name() string
	Extract(doc *goquery.Document) (float64, bool)
}

type InterhypCrawler struct {
	fetcher    Fetcher
	cfg        config.Interhyp
	strategies []InterhypStrategy
	logger     *zap.Logger
}

func NewInterhypCrawler(fetcher Fetcher, cfg config.Interhyp, logger *zap.Logger) *InterhypCrawler {
	return &InterhypCrawler{
		fetcher: fetcher,
		cfg:     cfg,
		strategies: []InterhypStrategy{
			InterhypTableStrategy{RateColumn: cfg.RateColumn, MinCells: cfg.MinCells},
			InterhypTextStrategy{LineMatch: cfg.LineMatch, Window: cfg.TextWindow},
		},
		logger: logger,
	}
}

// WithStrategies replaces the strategies, which are tried in order until one finds a rate.
func (i *InterhypCrawler) WithStrategies(strategies ...InterhypStrategy) *InterhypCrawler {
	i.strategies = strategies
	return i
}

// Crawl never fails: anything short of a scraped rate yields the configured placeholder.
func (i *InterhypCrawler) Crawl(ctx context.Context) model.InterhypSection {
	section := model.InterhypSection{SourceURL: i.cfg.URL}

	doc, err := i.load(ctx)
	if err != nil {
		i.logger.Error("failed reading Interhyp website, using placeholder",
			zap.String("url", i.cfg.URL), zap.Float64("placeholder", i.cfg.Placeholder), zap.Error(err))
		section.Rates = model.NewInterhypRates(model.Rate(i.cfg.Placeholder))
		section.DataQuality = model.QualityError
		section.ManualUpdateRequired = true
		section.Error = err.Error()
		return section
	}

	for _, s := range i.strategies {
		rate, ok := s.Extract(doc)
		if !ok {
			i.logger.Debug("strategy found nothing", zap.String("strategy", s.Name()))
			continue
		}
		i.logger.Info("extracted Interhyp rate", zap.String("strategy", s.Name()), zap.Float64("rate", rate))
		section.Rates = model.NewInterhypRates(model.Rate(rate))
		section.DataQuality = model.QualityScraped
		return section
	}

	i.logger.Warn("no Interhyp rate found, using placeholder", zap.Float64("placeholder", i.cfg.Placeholder))
	section.Rates = model.NewInterhypRates(model.Rate(i.cfg.Placeholder))
	section.DataQuality = model.QualityPlaceholder
	section.ManualUpdateRequired = true
	return section
}

func (i *InterhypCrawler) load(ctx context.Context) (*goquery.Document, error) {
	body, err := i.fetcher.Fetch(ctx, i.cfg.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// InterhypTableStrategy looks for a table mentioning the loan-to-value
// ("Beleihung", "90") and takes the rate of its 10 year row from RateColumn.
// The default -1 assumes the rightmost column is the tier we report.
type InterhypTableStrategy struct {
	RateColumn int
	MinCells   int
}

func (InterhypTableStrategy) Name() string { return "ltv-table" }

func (s InterhypTableStrategy) Extract(doc *goquery.Document) (float64, bool) {
	var rate float64
	found := false

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if !isLoanToValueTable(table) {
			return true
		}
		table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := row.Find("td, th")
			if cells.Length() < s.MinCells {
				return true
			}
			title := selectionText(cells.First())
			if title != "10" && !strings.Contains(title, "10 Jahre") {
				return true
			}
			cell := cells.Eq(s.RateColumn)
			if cell.Length() == 0 {
				return true
			}
			m := cellRatePattern.FindStringSubmatch(selectionText(cell))
			if m == nil {
				return true
			}
			r, err := parseRate(m[1])
			if err != nil {
				return true
			}
			rate, found = r, true
			return false
		})
		return !found
	})

	return rate, found
}

func isLoanToValueTable(table *goquery.Selection) bool {
	match := false
	table.Find("th, td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		text := selectionText(cell)
		match = strings.Contains(text, "Beleihung") || strings.Contains(text, "90")
		return !match
	})
	return match
}

// InterhypTextStrategy scans the page text line by line. After a line that is
// just "10" or mentions "Zinsbindung Tranche", the first line within Window
// lines carrying percentages yields the one at LineMatch; the default -1
// assumes tiers are listed with ascending loan-to-value.
type InterhypTextStrategy struct {
	LineMatch int
	Window    int
}

func (InterhypTextStrategy) Name() string { return "page-text" }

func (s InterhypTextStrategy) Extract(doc *goquery.Document) (float64, bool) {
	lines := strings.Split(doc.Text(), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "10" && !strings.Contains(line, "Zinsbindung Tranche") {
			continue
		}
		for j := i; j < min(i+s.Window, len(lines)); j++ {
			if rate, ok := pick(findRates(lineRatePattern, lines[j]), s.LineMatch); ok {
				return rate, true
			}
		}
	}
	return 0, false
}

func selectionText(s *goquery.Selection) string {
	return sanitizeText(s.Text())
}

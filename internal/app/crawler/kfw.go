package crawler

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/antchfx/htmlquery"
	"github.com/ymakhloufi/zins-compare/internal/pkg/config"
	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const kfwErrorMessage = "Scraping fehlgeschlagen. Bitte manuell prüfen."

var (
	_ KfWStrategy = KfWTableStrategy{}
	_ KfWStrategy = KfWDataAttrStrategy{}

	standPattern = regexp.MustCompile(`(?i)\bStand\s*:\s*(\d{2}\.\d{2}\.\d{4})`)
	termRanges   = buildTermRanges()
)

// KfWStrategy is one way of finding bucket rates on the KfW page.
// Extract writes what it finds into rates and reports how many rows it applied.
type KfWStrategy interface {
	Name() string
	Extract(doc *html.Node, rates model.KfWRates) (int, error)
}

type KfWCrawler struct {
	fetcher    Fetcher
	api        *KfWAPISource
	cfg        config.KfW
	strategies []KfWStrategy
	logger     *zap.Logger
}

func NewKfWCrawler(fetcher Fetcher, cfg config.KfW, logger *zap.Logger) *KfWCrawler {
	return &KfWCrawler{
		fetcher: fetcher,
		cfg:     cfg,
		strategies: []KfWStrategy{
			KfWTableStrategy{},
			KfWDataAttrStrategy{ProgramNumber: cfg.ProgramNumber},
		},
		logger: logger,
	}
}

// WithStrategies replaces the strategies, which are tried in order until one
// yields a non-zero nominal rate.
func (k *KfWCrawler) WithStrategies(strategies ...KfWStrategy) *KfWCrawler {
	k.strategies = strategies
	return k
}

// WithAPI tries the rates endpoint before the product page.
func (k *KfWCrawler) WithAPI(api *KfWAPISource) *KfWCrawler {
	k.api = api
	return k
}

// Crawl never fails: fetch and parse errors produce a section with null
// rates and the error text.
func (k *KfWCrawler) Crawl(ctx context.Context) model.KfWSection {
	if k.api != nil {
		if section, ok := k.crawlAPI(ctx); ok {
			return section
		}
	}

	body, err := k.fetcher.Fetch(ctx, k.cfg.URL)
	if err != nil {
		k.logger.Error("failed reading KfW website", zap.String("url", k.cfg.URL), zap.Error(err))
		return k.errorSection(err)
	}

	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		k.logger.Error("failed parsing KfW website", zap.Error(err))
		return k.errorSection(fmt.Errorf("failed to parse html: %w", err))
	}
	k.logger.Debug("parsed root nodes")

	section, err := k.parse(doc)
	if err != nil {
		k.logger.Error("failed extracting KfW rates", zap.Error(err))
		return k.errorSection(err)
	}
	return section
}

func (k *KfWCrawler) crawlAPI(ctx context.Context) (model.KfWSection, bool) {
	rates, err := k.api.Rates(ctx)
	if err != nil {
		k.logger.Warn("KfW rates api unusable, falling back to the product page", zap.String("url", k.api.URL()), zap.Error(err))
		return model.KfWSection{}, false
	}
	if rates.Uniform() {
		k.logger.Warn("all KfW rates from the api are equal, falling back to the product page",
			zap.Float64p("rate", rates[model.Bucket4to10].NominalRate))
		return model.KfWSection{}, false
	}

	k.logRates("extracted KfW rates from api", rates)
	return model.KfWSection{
		Program:     k.cfg.Program,
		Rates:       rates,
		SourceURL:   k.api.URL(),
		DataQuality: model.QualityScraped,
	}, true
}

func (k *KfWCrawler) parse(doc *html.Node) (model.KfWSection, error) {
	rates := model.NewKfWRates()
	for _, s := range k.strategies {
		n, err := s.Extract(doc, rates)
		if err != nil {
			return model.KfWSection{}, fmt.Errorf("strategy %s failed: %w", s.Name(), err)
		}
		k.logger.Debug("ran extraction strategy", zap.String("strategy", s.Name()), zap.Int("rows", n))
		if !rates.Untouched() {
			break
		}
	}

	if !rates.Untouched() && rates.Uniform() {
		k.logger.Warn("all KfW nominal rates are equal, discarding them",
			zap.Float64p("rate", rates[model.Bucket4to10].NominalRate))
		rates = model.NewKfWRates()
	}

	section := model.KfWSection{
		Program:     k.cfg.Program,
		Rates:       rates,
		SourceURL:   k.cfg.URL,
		Stand:       findStand(doc),
		DataQuality: model.QualityScraped,
	}

	if rates.Untouched() {
		k.logger.Warn("no KfW rates found, check the page structure. Using placeholders")
		for key, p := range k.cfg.Placeholders {
			if r, ok := rates[key]; ok {
				r.NominalRate = model.Rate(p.Nominal)
				r.EffectiveRate = model.Rate(p.Effective)
			}
		}
		section.DataQuality = model.QualityPlaceholder
		section.ManualUpdateRequired = true
		return section, nil
	}

	k.logRates("extracted KfW rates", rates)
	return section, nil
}

func (k *KfWCrawler) logRates(msg string, rates model.KfWRates) {
	fields := make([]zap.Field, 0, len(model.Buckets))
	for _, b := range model.Buckets {
		fields = append(fields, zap.Float64p(string(b.Key), rates[b.Key].NominalRate))
	}
	k.logger.Info(msg, fields...)
}

func (k *KfWCrawler) errorSection(err error) model.KfWSection {
	return model.KfWSection{
		Program:              k.cfg.Program,
		Rates:                model.NewNullKfWRates(),
		SourceURL:            k.cfg.URL,
		DataQuality:          model.QualityError,
		ManualUpdateRequired: true,
		Error:                err.Error(),
		Message:              kfwErrorMessage,
	}
}

// KfWTableStrategy scans the "Konditionen" table. Every row with at least two
// cells holding a percentage is assigned to a bucket by its term range; the
// first percentage is the nominal rate, the second the effective rate.
type KfWTableStrategy struct{}

func (KfWTableStrategy) Name() string { return "konditionen-table" }

func (KfWTableStrategy) Extract(doc *html.Node, rates model.KfWRates) (int, error) {
	table, err := findKonditionenTable(doc)
	if err != nil {
		return 0, err
	}
	if table == nil {
		return 0, nil
	}

	rowNodes, err := htmlquery.QueryAll(table, ".//tr")
	if err != nil {
		return 0, fmt.Errorf("failed to xpath rows: %w", err)
	}

	applied := 0
	for _, row := range rowNodes {
		cells, err := htmlquery.QueryAll(row, ".//td")
		if err != nil {
			return applied, fmt.Errorf("failed to xpath cells: %w", err)
		}
		if len(cells) < 2 {
			continue
		}

		texts := make([]string, 0, len(cells))
		for _, cell := range cells {
			texts = append(texts, getAllTextFromNode(cell))
		}
		text := strings.Join(texts, " ")

		found := findRates(percentPattern, text)
		if len(found) == 0 {
			continue
		}
		key, ok := classifyRow(text)
		if !ok {
			continue
		}

		bucket := rates[key]
		bucket.NominalRate = model.Rate(found[0])
		if len(found) > 1 {
			bucket.EffectiveRate = model.Rate(found[1])
		}
		applied++
	}
	return applied, nil
}

// this is the shaky part. The class name is the only thing tying us to their table
func findKonditionenTable(doc *html.Node) (*html.Node, error) {
	tables, err := htmlquery.QueryAll(doc, "//table[@class]")
	if err != nil {
		return nil, fmt.Errorf("failed to xpath tables: %w", err)
	}
	for _, t := range tables {
		if strings.Contains(strings.ToLower(htmlquery.SelectAttr(t, "class")), "konditionen") {
			return t, nil
		}
	}
	return nil, nil
}

type termRange struct {
	key     model.BucketKey
	pattern *regexp.Regexp
}

func buildTermRanges() []termRange {
	out := make([]termRange, 0, len(model.Buckets))
	for _, b := range model.Buckets {
		out = append(out, termRange{
			key:     b.Key,
			pattern: regexp.MustCompile(`(?:^|\D)` + b.MinYears + `\s*(?:bis|-|–)\s*` + b.MaxYears + `(?:\D|$)`),
		})
	}
	return out
}

// classifyRow prefers an explicit range like "11 bis 25". Only when no
// bucket matches that way do both boundaries anywhere in the text count,
// which misfires on rows like "11 bis 25 Jahre, 10 Jahre Zinsbindung, 1,45 %".
func classifyRow(text string) (model.BucketKey, bool) {
	for _, r := range termRanges {
		if r.pattern.MatchString(text) {
			return r.key, true
		}
	}
	for _, b := range model.Buckets {
		if strings.Contains(text, b.MinYears) && strings.Contains(text, b.MaxYears) {
			return b.Key, true
		}
	}
	return "", false
}

// KfWDataAttrStrategy reads the rate spans the KfW page annotates with
// data-program-numbers, data-laufzeit and data-interest-rate-type. These are
// only filled once the page's scripts ran, see fetch.Browser.
type KfWDataAttrStrategy struct {
	ProgramNumber string
}

func (KfWDataAttrStrategy) Name() string { return "rate-data-attributes" }

func (s KfWDataAttrStrategy) Extract(doc *html.Node, rates model.KfWRates) (int, error) {
	spans, err := htmlquery.QueryAll(doc, "//span[@data-program-numbers][@data-interest-rate-type]")
	if err != nil {
		return 0, fmt.Errorf("failed to xpath rate spans: %w", err)
	}

	applied := 0
	for _, span := range spans {
		if !hasProgramNumber(htmlquery.SelectAttr(span, "data-program-numbers"), s.ProgramNumber) {
			continue
		}
		key, ok := bucketByTerm(htmlquery.SelectAttr(span, "data-laufzeit"))
		if !ok {
			continue
		}

		label, err := htmlquery.Query(span, ".//span[contains(@class, 'link-labeling')]")
		if err != nil {
			return applied, fmt.Errorf("failed to xpath rate label: %w", err)
		}
		if label == nil {
			label = span
		}
		text := getAllTextFromNode(label)
		if strings.Contains(text, "-,--") { // not rendered yet
			continue
		}
		found := findRates(percentPattern, text)
		if len(found) == 0 {
			continue
		}

		switch strings.ToLower(htmlquery.SelectAttr(span, "data-interest-rate-type")) {
		case "sollzins":
			rates[key].NominalRate = model.Rate(found[0])
		case "effektivzins":
			rates[key].EffectiveRate = model.Rate(found[0])
		default:
			continue
		}
		applied++
	}
	return applied, nil
}

func hasProgramNumber(attr, number string) bool {
	fields := strings.FieldsFunc(attr, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	for _, f := range fields {
		if f == number {
			return true
		}
	}
	return false
}

// bucketByTerm maps data-laufzeit, the maximum term in years, to its bucket.
func bucketByTerm(years string) (model.BucketKey, bool) {
	years = strings.TrimSpace(years)
	for _, b := range model.Buckets {
		if b.MaxYears == years {
			return b.Key, true
		}
	}
	return "", false
}

// findStand returns the "Stand: dd.mm.yyyy" date printed with the conditions.
func findStand(doc *html.Node) *civil.Date {
	m := standPattern.FindStringSubmatch(getAllTextFromNode(doc))
	if m == nil {
		return nil
	}
	t, err := time.Parse("02.01.2006", m[1])
	if err != nil {
		return nil
	}
	d := civil.DateOf(t)
	return &d
}

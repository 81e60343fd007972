package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ymakhloufi/zins-compare/internal/pkg/model"
)

const (
	DefaultKfWURL      = "https://www.kfw.de/inlandsfoerderung/Privatpersonen/Neubau/F%C3%B6rderprodukte/Wohneigentum-f%C3%BCr-Familien-(300)/"
	DefaultKfWAPIURL   = "https://www.kfw.de/zinsen/soll.rates"
	DefaultInterhypURL = "https://www.interhyp.de/zinsen/"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	defaultKfWPlaceholders = "4-10_jahre=0.01/0.01,11-25_jahre=1.09/1.10,26-35_jahre=1.32/1.33"
)

type Config struct {
	OutputPath    string
	DatabaseURL   string
	HTTPTimeout   time.Duration
	RenderTimeout time.Duration
	UserAgent     string
	LogFormat     string

	KfW      KfW
	Interhyp Interhyp
}

type KfW struct {
	URL string
	// APIURL is the JSON rates endpoint tried before the product page. Empty disables it.
	APIURL        string
	Program       string
	ProgramNumber string
	Render        bool
	// Placeholders replace all six rates when nothing could be extracted.
	Placeholders map[model.BucketKey]model.RatePair
}

type Interhyp struct {
	URL         string
	Placeholder float64
	// RateColumn picks the cell of the 10 year row, negative values count from the right.
	RateColumn int
	// LineMatch picks the percentage on a text line, negative values count from the right.
	LineMatch  int
	MinCells   int
	TextWindow int
}

// Load reads the configuration from the environment. Malformed numbers fall
// back to their defaults, malformed placeholder lists are an error.
func Load() (*Config, error) {
	placeholders, err := ParsePlaceholders(getEnv("KFW_PLACEHOLDERS", defaultKfWPlaceholders))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KFW_PLACEHOLDERS: %w", err)
	}

	return &Config{
		OutputPath:    getEnv("ZINSEN_OUTPUT", "zinsen-kfw300.json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		RenderTimeout: getEnvDuration("RENDER_TIMEOUT", 30*time.Second),
		UserAgent:     getEnv("HTTP_USER_AGENT", DefaultUserAgent),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		KfW: KfW{
			URL:           getEnv("KFW_URL", DefaultKfWURL),
			APIURL:        getEnvOptional("KFW_API_URL", DefaultKfWAPIURL),
			Program:       getEnv("KFW_PROGRAM", "KfW 300 - Wohneigentum für Familien"),
			ProgramNumber: getEnv("KFW_PROGRAM_NUMBER", "300"),
			Render:        getEnvBool("KFW_RENDER", false),
			Placeholders:  placeholders,
		},
		Interhyp: Interhyp{
			URL:         getEnv("INTERHYP_URL", DefaultInterhypURL),
			Placeholder: getEnvFloat("INTERHYP_PLACEHOLDER", 3.96),
			RateColumn:  getEnvInt("INTERHYP_RATE_COLUMN", -1),
			LineMatch:   getEnvInt("INTERHYP_LINE_MATCH", -1),
			MinCells:    getEnvInt("INTERHYP_MIN_CELLS", 4),
			TextWindow:  getEnvInt("INTERHYP_TEXT_WINDOW", 5),
		},
	}, nil
}

// ParsePlaceholders parses "key=nominal/effective" pairs separated by commas.
// Every bucket must be present exactly once.
func ParsePlaceholders(s string) (map[model.BucketKey]model.RatePair, error) {
	out := make(map[model.BucketKey]model.RatePair, len(model.Buckets))
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, pair, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("missing '=' in '%s'", part)
		}
		nominalStr, effectiveStr, ok := strings.Cut(pair, "/")
		if !ok {
			return nil, fmt.Errorf("missing '/' in '%s'", part)
		}
		nominal, err := strconv.ParseFloat(strings.TrimSpace(nominalStr), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse nominal rate in '%s': %w", part, err)
		}
		effective, err := strconv.ParseFloat(strings.TrimSpace(effectiveStr), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse effective rate in '%s': %w", part, err)
		}

		bucket := model.BucketKey(strings.TrimSpace(key))
		if _, dup := out[bucket]; dup {
			return nil, fmt.Errorf("duplicate bucket '%s'", bucket)
		}
		out[bucket] = model.RatePair{Nominal: nominal, Effective: effective}
	}

	for _, b := range model.Buckets {
		if _, ok := out[b.Key]; !ok {
			return nil, fmt.Errorf("missing bucket '%s'", b.Key)
		}
	}
	if len(out) != len(model.Buckets) {
		return nil, fmt.Errorf("unknown bucket in '%s'", s)
	}
	return out, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvOptional keeps an explicitly empty value, which disables the feature.
func getEnvOptional(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(strings.Replace(val, ",", ".", 1), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

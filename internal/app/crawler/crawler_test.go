package crawler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ymakhloufi/zins-compare/internal/pkg/config"
)

const (
	testKfWURL      = "https://kfw.test/300/"
	testInterhypURL = "https://interhyp.test/zinsen/"
)

type stubFetcher struct {
	body []byte
	err  error
	urls []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return nil, s.err
	}
	return s.body, nil
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return body
}

func kfwConfig(t *testing.T) config.KfW {
	t.Helper()
	placeholders, err := config.ParsePlaceholders("4-10_jahre=0.01/0.01,11-25_jahre=1.09/1.10,26-35_jahre=1.32/1.33")
	require.NoError(t, err)
	return config.KfW{
		URL:           testKfWURL,
		Program:       "KfW 300 - Wohneigentum für Familien",
		ProgramNumber: "300",
		Placeholders:  placeholders,
	}
}

func interhypConfig() config.Interhyp {
	return config.Interhyp{
		URL:         testInterhypURL,
		Placeholder: 3.96,
		RateColumn:  -1,
		LineMatch:   -1,
		MinCells:    4,
		TextWindow:  5,
	}
}

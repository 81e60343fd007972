package crawler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	// percentPattern matches "1,23 %" and "1.23%".
	percentPattern = regexp.MustCompile(`(\d+[,.]\d+)\s*%`)
)

// parseRate parses a German or English decimal, "1,09" and "1.09" alike.
func parseRate(s string) (float64, error) {
	normalized := strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	rate, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate from string '%s' (sanitized: '%s'): %w", s, normalized, err)
	}
	return rate, nil
}

// findRates returns every percentage in text matched by pattern. The first
// capture group of pattern must hold the number.
func findRates(pattern *regexp.Regexp, text string) []float64 {
	matches := pattern.FindAllStringSubmatch(text, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		rate, err := parseRate(m[1])
		if err != nil {
			continue
		}
		out = append(out, rate)
	}
	return out
}

// pick returns s[i], counting from the end for negative i.
func pick[T any](s []T, i int) (T, bool) {
	var zero T
	if i < 0 {
		i += len(s)
	}
	if i < 0 || i >= len(s) {
		return zero, false
	}
	return s[i], true
}

func getAllTextFromNode(node *html.Node) string {
	var sb strings.Builder
	collectText(node, &sb)
	return sanitizeText(sb.String())
}

func collectText(node *html.Node, sb *strings.Builder) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		sb.WriteString(" ")
		sb.WriteString(node.Data)
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}

func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ") // non-breaking space
	s = whitespace.ReplaceAllString(s, " ")  // merge multi-spaces
	return strings.Trim(s, " ")
}

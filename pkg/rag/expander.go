package rag

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// QueryExpander produces lexical variants of a query to raise recall:
// accent normalization, domain synonym substitution and numeric pattern
// rewriting. Purely local, no network calls.
type QueryExpander struct {
	config   *ExpanderConfig
	patterns []compiledPattern
	logger   *slog.Logger
}

type compiledPattern struct {
	re       *regexp.Regexp
	template string
}

// NewQueryExpander creates an expander, compiling the configured numeric
// patterns. Invalid patterns are skipped with a warning.
func NewQueryExpander(config *ExpanderConfig) *QueryExpander {
	if config == nil {
		config = getDefaultExpanderConfig()
	}
	if config.MaxExpandedQueries <= 0 {
		config.MaxExpandedQueries = 5
	}

	qe := &QueryExpander{
		config: config,
		logger: slog.Default().With("component", "query-expander"),
	}

	for _, p := range config.NumericPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			qe.logger.Warn("Skipping invalid numeric pattern", "pattern", p.Pattern, "error", err)
			continue
		}
		qe.patterns = append(qe.patterns, compiledPattern{re: re, template: p.Template})
	}

	return qe
}

// Expand returns up to MaxExpandedQueries variants. The original query is
// always first, whatever its content; derived variants are deduplicated
// case-insensitively preserving first-seen order.
func (qe *QueryExpander) Expand(query string) []string {
	variants := []string{query}
	seen := map[string]struct{}{normalizeVariant(query): {}}

	add := func(v string) {
		key := normalizeVariant(v)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
	}

	if stripped := stripAccents(query); stripped != query {
		add(stripped)
	}

	// Numeric rewrites go before synonym substitution: they are rarer and
	// higher-signal, and must survive the cap.
	for _, v := range qe.numericVariants(query) {
		add(v)
	}
	for _, v := range qe.synonymVariants(query) {
		add(v)
	}

	if len(variants) > qe.config.MaxExpandedQueries {
		variants = variants[:qe.config.MaxExpandedQueries]
	}
	return variants
}

// synonymVariants emits one variant per configured synonym of each term
// present in the query, replacing that occurrence only.
func (qe *QueryExpander) synonymVariants(query string) []string {
	lower := strings.ToLower(query)

	terms := make([]string, 0, len(qe.config.Synonyms))
	for term := range qe.config.Synonyms {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var variants []string
	for _, term := range terms {
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		for _, synonym := range qe.config.Synonyms[term] {
			variant := query[:idx] + synonym + query[idx+len(term):]
			variants = append(variants, variant)
		}
	}
	return variants
}

// numericVariants rewrites numeric expressions into their verbal form, e.g.
// "500/500" into "500 Mbps simétrico".
func (qe *QueryExpander) numericVariants(query string) []string {
	var variants []string
	for _, p := range qe.patterns {
		if !p.re.MatchString(query) {
			continue
		}
		variants = append(variants, p.re.ReplaceAllString(query, p.template))
	}
	return variants
}

// stripAccents maps accented characters to their unaccented equivalents.
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func normalizeVariant(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// dedupeStrings removes blank and case-insensitive duplicate entries,
// preserving order.
func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := normalizeVariant(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

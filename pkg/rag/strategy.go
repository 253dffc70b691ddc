package rag

import (
	"strings"
	"time"
)

// fastQueryTerms are high-frequency support terms that mark a query as
// cheap to answer: greetings and the handful of topics customers repeat
// constantly. Matching is on the lowercased query.
var fastQueryTerms = []string{
	"hola", "hello", "hi", "buenas", "buenos dias", "buenos días",
	"gracias", "adios", "adiós",
	"precio", "price", "costo",
	"plan", "planes",
	"servicio", "service",
}

const (
	fastTokenLimit = 3

	// fastTermTokenLimit bounds the term shortcut. A long sentence that
	// happens to mention "plan" or "precio" still carries enough context
	// to deserve the comprehensive path.
	fastTermTokenLimit = 6

	fastCacheTTL          = 600 * time.Second
	comprehensiveCacheTTL = 300 * time.Second
)

// SelectStrategy classifies a query as FAST or COMPREHENSIVE. FAST queries
// skip multi-query expansion and cache longer; COMPREHENSIVE queries expand
// and cache shorter. Deterministic and side-effect-free.
func SelectStrategy(query string) RetrievalStrategy {
	lower := strings.ToLower(strings.TrimSpace(query))
	tokens := len(strings.Fields(lower))

	fast := tokens <= fastTokenLimit
	if !fast && tokens <= fastTermTokenLimit {
		for _, term := range fastQueryTerms {
			if strings.Contains(lower, term) {
				fast = true
				break
			}
		}
	}

	if fast {
		return RetrievalStrategy{
			Kind:          StrategyFast,
			UseMultiQuery: false,
			CacheTTL:      fastCacheTTL,
		}
	}
	return RetrievalStrategy{
		Kind:          StrategyComprehensive,
		UseMultiQuery: true,
		CacheTTL:      comprehensiveCacheTTL,
	}
}

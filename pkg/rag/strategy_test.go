package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectStrategyGreeting(t *testing.T) {
	strategy := SelectStrategy("hola")

	assert.Equal(t, StrategyFast, strategy.Kind)
	assert.False(t, strategy.UseMultiQuery)
	assert.Equal(t, 600*time.Second, strategy.CacheTTL)
}

func TestSelectStrategyShortQuery(t *testing.T) {
	// Three tokens or fewer are always fast, term list or not.
	strategy := SelectStrategy("horario de atención")

	assert.Equal(t, StrategyFast, strategy.Kind)
	assert.False(t, strategy.UseMultiQuery)
}

func TestSelectStrategyShortTermQuery(t *testing.T) {
	strategy := SelectStrategy("cuánto cuesta el plan básico")

	assert.Equal(t, StrategyFast, strategy.Kind, "short query mentioning a common term is fast")
}

func TestSelectStrategyLongQuery(t *testing.T) {
	strategy := SelectStrategy("¿Cuál es el precio del plan de 500 Mbps?")

	assert.Equal(t, StrategyComprehensive, strategy.Kind)
	assert.True(t, strategy.UseMultiQuery)
	assert.Equal(t, 300*time.Second, strategy.CacheTTL)
}

func TestSelectStrategyDeterministic(t *testing.T) {
	queries := []string{
		"hola",
		"mi internet no funciona desde ayer por la tarde",
		"¿Cuál es el precio del plan de 500 Mbps?",
	}
	for _, query := range queries {
		first := SelectStrategy(query)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, SelectStrategy(query), "query %q", query)
		}
	}
}

func TestSelectStrategyCaseInsensitive(t *testing.T) {
	assert.Equal(t, SelectStrategy("HOLA").Kind, SelectStrategy("hola").Kind)
	assert.Equal(t, SelectStrategy("  hola  ").Kind, StrategyFast)
}

package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandOriginalFirst(t *testing.T) {
	expander := NewQueryExpander(nil)

	variants := expander.Expand("¿Cuál es el precio del plan de 500 Mbps?")

	require.NotEmpty(t, variants)
	assert.Equal(t, "¿Cuál es el precio del plan de 500 Mbps?", variants[0])
	assert.LessOrEqual(t, len(variants), 5)
}

func TestExpandAccentVariant(t *testing.T) {
	expander := NewQueryExpander(nil)

	variants := expander.Expand("¿Cuánto cuesta la instalación?")

	assert.Contains(t, variants, "¿Cuanto cuesta la instalacion?")
}

func TestExpandSymmetricSpeed(t *testing.T) {
	expander := NewQueryExpander(nil)

	for _, query := range []string{
		"tienen el plan 500/500",
		"¿Cuál es el precio del plan de 500 Mbps?",
	} {
		variants := expander.Expand(query)
		found := false
		for _, v := range variants {
			if strings.Contains(v, "500 Mbps simétrico") {
				found = true
				break
			}
		}
		assert.True(t, found, "query %q should yield a symmetric-speed variant, got %v", query, variants)
	}
}

func TestExpandSynonymVariant(t *testing.T) {
	expander := NewQueryExpander(&ExpanderConfig{
		MaxExpandedQueries: 5,
		Synonyms:           map[string][]string{"precio": {"costo", "tarifa"}},
	})

	variants := expander.Expand("precio del servicio")

	assert.Contains(t, variants, "costo del servicio")
	assert.Contains(t, variants, "tarifa del servicio")
}

func TestExpandDedupCaseInsensitive(t *testing.T) {
	expander := NewQueryExpander(&ExpanderConfig{
		MaxExpandedQueries: 5,
		Synonyms:           map[string][]string{"precio": {"PRECIO"}},
	})

	variants := expander.Expand("precio")

	assert.Equal(t, []string{"precio"}, variants)
}

func TestExpandRespectsMax(t *testing.T) {
	expander := NewQueryExpander(&ExpanderConfig{
		MaxExpandedQueries: 2,
		Synonyms: map[string][]string{
			"internet": {"fibra", "wifi", "red", "banda ancha"},
		},
	})

	variants := expander.Expand("problemas con el internet en casa")

	assert.Len(t, variants, 2)
	assert.Equal(t, "problemas con el internet en casa", variants[0])
}

func TestExpandInvalidPatternSkipped(t *testing.T) {
	expander := NewQueryExpander(&ExpanderConfig{
		MaxExpandedQueries: 5,
		NumericPatterns: []NumericPattern{
			{Pattern: "([", Template: "broken"},
			{Pattern: `\b(\d+)/(\d+)\b`, Template: "$1 Mbps simétrico"},
		},
	})

	variants := expander.Expand("plan 100/100")

	assert.Contains(t, variants, "plan 100 Mbps simétrico")
}

func TestExpandWhitespaceQueryKeptFirst(t *testing.T) {
	expander := NewQueryExpander(nil)

	variants := expander.Expand("   ")

	require.NotEmpty(t, variants, "expansion always returns at least the input")
	assert.Equal(t, "   ", variants[0])
	assert.Len(t, variants, 1)
}

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "instalacion", stripAccents("instalación"))
	assert.Equal(t, "adios", stripAccents("adiós"))
	assert.Equal(t, "hola", stripAccents("hola"))
}

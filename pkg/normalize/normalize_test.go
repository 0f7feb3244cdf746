package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := New(DefaultTables(), Options{})

	testCases := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"   ", ""},
		{"!!!", ""},
		{"Main Rd", "main rd"},
		{"  Avenida   18  de Julio ", "avenida 18 de julio"},
		{"Dieciocho de Julio", "18 de julio"},
		{"calle veinte y tres", "calle 20 y 3"},
		{"uno dos tres", "1 2 3"},
		{"Av. Millán", "av mill n"},
		{"Gral.Flores", "gral flores"},
		{"Ruta-8\tkm 20", "ruta 8 km 20"},
		{"dieciochoavo", "dieciochoavo"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, n.Normalize(tc.input))
		})
	}
}

func TestNormalizeOptions(t *testing.T) {
	t.Run("fold accents", func(t *testing.T) {
		n := New(DefaultTables(), Options{FoldAccents: true})
		assert.Equal(t, "avenida millan", n.Normalize("Avenida Millán"))
		assert.Equal(t, "espana", n.Normalize("España"))
	})

	t.Run("expand synonyms whole tokens only", func(t *testing.T) {
		n := New(DefaultTables(), Options{ExpandSynonyms: true})
		assert.Equal(t, "avenida libertador", n.Normalize("Av Lib"))
		assert.Equal(t, "avenida 18 de julio", n.Normalize("Av. Dieciocho de Julio"))
		// "av" inside another token stays untouched
		assert.Equal(t, "avila street", n.Normalize("Avila Street"))
		assert.Equal(t, "camino lecoq", n.Normalize("Cno Lecoq"))
	})

	t.Run("synonyms off by default", func(t *testing.T) {
		n := New(DefaultTables(), Options{})
		assert.Equal(t, "av lib", n.Normalize("Av Lib"))
	})
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", "Main Rd", "Dieciocho de Julio", "Av. Gral. Flores 2345",
		"ÑANDÚ  ¿qué?", "veinte veinte 20", "Cno. Lecoq / Ruta 1",
		"St. John's Wood", "  diecinueve   de   ABRIL ",
	}
	variants := []Options{
		{},
		{ExpandSynonyms: true},
		{FoldAccents: true},
		{ExpandSynonyms: true, FoldAccents: true},
	}
	for _, opts := range variants {
		n := New(DefaultTables(), opts)
		for _, in := range inputs {
			once := n.Normalize(in)
			assert.Equal(t, once, n.Normalize(once), "opts=%+v input=%q", opts, in)
		}
	}
}

func TestInverse(t *testing.T) {
	n := New(DefaultTables(), Options{})
	assert.Equal(t, "dieciocho de julio", n.Inverse("18 de julio"))
	assert.Equal(t, "ruta 21", n.Inverse("ruta 21"))
	assert.Equal(t, "", n.Inverse(""))
	assert.Equal(t, "18 de julio", n.Normalize(n.Inverse("18 de julio")))
}

func TestTablesValidate(t *testing.T) {
	testCases := []struct {
		name string
		data string
		ok   bool
	}{
		{"defaults", defaultTables, true},
		{"empty", "", true},
		{"uppercase key", "[numerals]\nUno = 1\n", false},
		{"digit word", "[numerals]\n\"7\" = 7\n", false},
		{"duplicate value", "[numerals]\nuno = 1\none = 1\n", false},
		{"zero", "[numerals]\ncero = 0\n", false},
		{"chained synonym", "[synonyms]\nav = \"avda\"\navda = \"avenida\"\n", false},
		{"synonym to number word", "[numerals]\ndieciocho = 18\n[synonyms]\n\"18\" = \"dieciocho\"\n", false},
		{"multi token synonym", "[synonyms]\nsf = \"san felipe\"\n", true},
		{"non normalized value", "[synonyms]\nav = \"Avenida\"\n", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTables(tc.data)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestLoadTables(t *testing.T) {
	tables, err := LoadTables("")
	require.NoError(t, err)
	assert.Len(t, tables.Numerals, 20)
	assert.Equal(t, 1, tables.Numerals["uno"])
	assert.Equal(t, 20, tables.Numerals["veinte"])

	_, err = LoadTables("does-not-exist.toml")
	assert.Error(t, err)
}

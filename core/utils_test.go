package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "Fractions", want: "fractions"},
		{in: "  Adding & Subtracting  Fractions ", want: "adding-subtracting-fractions"},
		{in: "--Times Tables (1-12)!", want: "times-tables-1-12"},
		{in: "Géométrie", want: "g-om-trie"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Hello", CleanString("  Hello \n"))
	assert.Equal(t, "hello", CleanString("  HeLLo ", true))
}

func TestPagination_Offset(t *testing.T) {
	assert.Equal(t, 0, Pagination{}.Offset())
	assert.Equal(t, 0, Pagination{Page: 1, PageSize: 12}.Offset())
	assert.Equal(t, 24, Pagination{Page: 3, PageSize: 12}.Offset())
	assert.Equal(t, 0, Pagination{Page: 3}.Offset())
}

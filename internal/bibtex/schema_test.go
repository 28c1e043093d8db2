package bibtex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaTable(t *testing.T) {
	s, ok := LookupSchema("article")
	require.True(t, ok)
	assert.Equal(t, []string{"title", "author", "journal", "year"}, s.Required)
	assert.Equal(t, []string{"volume", "number", "pages", "month"}, s.Recommended)

	for _, name := range []string{TypePreamble, TypeComment, TypeUnknown} {
		s, ok := LookupSchema(name)
		require.True(t, ok, name)
		assert.Empty(t, s.Required, name)
		assert.Empty(t, s.Recommended, name)
	}

	_, ok = LookupSchema("novel")
	assert.False(t, ok)
}

func TestSchemaTable_Copies(t *testing.T) {
	s, _ := LookupSchema("article")
	s.Required[0] = "mutated"
	types := EntryTypes()
	types[0] = "mutated"

	again, _ := LookupSchema("article")
	assert.Equal(t, "title", again.Required[0])
	assert.Equal(t, "article", EntryTypes()[0])
}

func TestSchemaTable_Complete(t *testing.T) {
	assert.Len(t, EntryTypes(), 20)
	for _, name := range AllTypes() {
		s, ok := LookupSchema(name)
		require.True(t, ok, name)
		assert.NotEmpty(t, s.Description, name)
	}
	assert.Len(t, Schemas(), 23)
	assert.False(t, IsEntryType(TypeUnknown))
	assert.False(t, IsEntryType(TypeComment))
}

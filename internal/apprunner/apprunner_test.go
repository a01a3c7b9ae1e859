package apprunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog_RegisterAndLookup(t *testing.T) {
	c := NewCatalog()
	r := NewFunctionRunner(func(args [][]byte, kwargs map[string][]byte, environ map[string]string) ([]byte, error) {
		return nil, nil
	})
	c.Register("sum", r)

	got, ok := c.Lookup("sum")
	assert.True(t, ok)
	assert.Same(t, Runner(r), got)
}

func TestCatalog_LookupMissing(t *testing.T) {
	c := NewCatalog()
	_, ok := c.Lookup("ghost")
	assert.False(t, ok)
}

func TestCatalog_Names(t *testing.T) {
	c := NewCatalog()
	c.Register("a", NewFunctionRunner(nil))
	c.Register("b", NewFunctionRunner(nil))

	assert.ElementsMatch(t, []string{"a", "b"}, c.Names())
}

func TestCatalog_RegisterOverwrites(t *testing.T) {
	c := NewCatalog()
	first := NewFunctionRunner(nil)
	second := NewFunctionRunner(nil)
	c.Register("sum", first)
	c.Register("sum", second)

	got, ok := c.Lookup("sum")
	assert.True(t, ok)
	assert.Same(t, Runner(second), got)
}

package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func names(u Unit) []string {
	out := make([]string, len(u.Commands))
	for i, c := range u.Commands {
		out[i] = c.Name
	}
	return out
}

func TestParseSingleCommand(t *testing.T) {
	units := Parse("quote SPY")
	assert.Len(t, units, 1)
	assert.False(t, units[0].Concurrent)
	assert.Equal(t, Command{Name: "quote", Args: []string{"SPY"}}, units[0].Commands[0])
}

func TestParseSemicolonsAndNewlines(t *testing.T) {
	units := Parse("add SPY; add AAPL\nquote")
	assert.Len(t, units, 3)
	for _, u := range units {
		assert.False(t, u.Concurrent)
		assert.Len(t, u.Commands, 1)
	}
}

func TestParseBackgroundGrouping(t *testing.T) {
	units := Parse("a&; b&; c; d&; e&")

	assert.Len(t, units, 3)

	assert.True(t, units[0].Concurrent)
	assert.Equal(t, []string{"a", "b"}, names(units[0]))

	assert.False(t, units[1].Concurrent)
	assert.Equal(t, []string{"c"}, names(units[1]))

	assert.True(t, units[2].Concurrent)
	assert.Equal(t, []string{"d", "e"}, names(units[2]))
}

func TestParseTrailingGroupFlushed(t *testing.T) {
	units := Parse("buy SPY 10&")
	assert.Len(t, units, 1)
	assert.True(t, units[0].Concurrent)
	assert.Equal(t, []string{"buy"}, names(units[0]))
}

func TestParseComments(t *testing.T) {
	units := Parse("quote SPY # midday check\n# full line comment\nadd AAPL")
	assert.Len(t, units, 2)
	assert.Equal(t, "quote", units[0].Commands[0].Name)
	assert.Equal(t, "add", units[1].Commands[0].Name)
}

func TestParseEmptyAndBlank(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("  ;; \n # nothing here"))
	assert.Empty(t, Parse("&"))
}

func TestParseNameLowercasedArgsKept(t *testing.T) {
	units := Parse("BUY Spy -5000")
	assert.Equal(t, "buy", units[0].Commands[0].Name)
	assert.Equal(t, []string{"Spy", "-5000"}, units[0].Commands[0].Args)
}

func TestCommandRaw(t *testing.T) {
	assert.Equal(t, "buy SPY 10", Command{Name: "buy", Args: []string{"SPY", "10"}}.Raw())
	assert.Equal(t, "exit", Command{Name: "exit"}.Raw())
}

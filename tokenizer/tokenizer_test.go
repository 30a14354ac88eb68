package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	c := NewCounter("")

	n, err := c.CountTokens("What does the constitution say about land ownership?")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	empty, err := c.CountTokens("")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestCountTokensGrowsWithText(t *testing.T) {
	c := NewCounter(defaultEncoding)

	short, err := c.CountTokens("article")
	require.NoError(t, err)

	long, err := c.CountTokens(strings.Repeat("article eighty of the constitution ", 50))
	require.NoError(t, err)

	assert.Greater(t, long, short)
}

func TestUnknownEncodingFails(t *testing.T) {
	c := NewCounter("no_such_encoding")
	_, err := c.CountTokens("text")
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "Apply"))
	assert.True(t, confirm(strings.NewReader("YES\n"), &out, "Apply"))
	assert.False(t, confirm(strings.NewReader("\n"), &out, "Apply"))
	assert.False(t, confirm(strings.NewReader(""), &out, "Apply"))
	assert.Contains(t, out.String(), "Apply? [y/N]")
}

func TestParseDate(t *testing.T) {
	parsed, err := parseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), parsed)

	empty, err := parseDate("  ")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = parseDate("01/03/2024")
	assert.Error(t, err)
}

package model

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeHistorical, ModeLive} {
		got, err := ParseMode(m.String())
		assert.NilError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("replay")
	assert.ErrorContains(t, err, "unknown mode")
	assert.Equal(t, "Mode(7)", Mode(7).String())
}

func TestDriverLabel(t *testing.T) {
	assert.Equal(t, "#44", DriverLabel(44))
}

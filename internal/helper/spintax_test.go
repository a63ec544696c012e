package helper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSpintaxPicksOneAlternative(t *testing.T) {
	got := RenderSpintax("{Hi|Hello|Hey} there")
	assert.Contains(t, []string{"Hi there", "Hello there", "Hey there"}, got)
}

func TestRenderSpintaxPlainTextUnchanged(t *testing.T) {
	assert.Equal(t, "no alternatives here", RenderSpintax("no alternatives here"))
}

func TestRenderSpintaxMultipleGroups(t *testing.T) {
	got := RenderSpintax("{a|b} and {c|d}")
	assert.NotContains(t, got, "{")
	assert.NotContains(t, got, "|")
}

func TestRenderDynamicVariables(t *testing.T) {
	got := RenderDynamicVariables("{TIME_GREETING}, today is {DAY_NAME} ({DATE}).")
	assert.NotContains(t, got, "{TIME_GREETING}")
	assert.NotContains(t, got, "{DAY_NAME}")
	assert.NotContains(t, got, "{DATE}")
	assert.True(t, strings.HasPrefix(got, "Good "))
}

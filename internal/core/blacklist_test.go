package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExempt(t *testing.T) {
	assert.True(t, IsExempt(SelfBundleID))
	assert.True(t, IsExempt("com.apple.Terminal"))
	assert.True(t, IsExempt("com.apple.finder"))
	assert.True(t, IsExempt("org.gnome.Terminal"))

	assert.False(t, IsExempt("org.mozilla.firefox"))
	assert.False(t, IsExempt(""))
	// Exemption is exact-match, not prefix-based.
	assert.False(t, IsExempt("com.apple.Terminal.helper"))
}

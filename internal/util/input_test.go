package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@x.com"))
	assert.False(t, ValidEmail("Alice <a@x.com>"))
	assert.False(t, ValidEmail("not-an-email"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "******cdef", MaskSecret("0123abcdef"))
	assert.Equal(t, "***", MaskSecret("abc"))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;", SanitizeInput(" <b> "))
}

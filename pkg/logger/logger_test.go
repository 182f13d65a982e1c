package logger

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "WARN", "error"} {
		l, err := New(lvl, "json")
		require.NoError(t, err, lvl)
		require.NotNil(t, l)
	}
	_, err := New("loud", "json")
	assert.Error(t, err)
}

func TestSafeHeadersRedactsCredentials(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc.def")
	r.Header.Set("User-Agent", "test")

	out := SafeHeaders(r)
	assert.Contains(t, out, "Authorization=<redacted>")
	assert.Contains(t, out, "User-Agent=test")
	assert.False(t, strings.Contains(out, "abc.def"))
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNewStaticUserAgentProvider tests the configured value and the fallback.
func TestNewStaticUserAgentProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		userAgent string
		fallback  string
		expected  string
	}{
		{
			name:      "configured user agent",
			userAgent: "custom/2.0",
			fallback:  "fetchcore/0.1.0",
			expected:  "custom/2.0",
		},
		{
			name:      "empty user agent uses fallback",
			userAgent: "",
			fallback:  "fetchcore/0.1.0",
			expected:  "fetchcore/0.1.0",
		},
		{
			name:      "blank user agent uses fallback",
			userAgent: "   ",
			fallback:  "fetchcore/0.1.0",
			expected:  "fetchcore/0.1.0",
		},
		{
			name:      "surrounding spaces are trimmed",
			userAgent: " Mozilla/5.0 (X11; Linux x86_64) ",
			fallback:  "fetchcore/0.1.0",
			expected:  "Mozilla/5.0 (X11; Linux x86_64)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := NewStaticUserAgentProvider(tt.userAgent, tt.fallback)

			assert.Implements(t, (*UserAgentProvider)(nil), provider)
			assert.Equal(t, tt.expected, provider.GetUserAgent())
		})
	}
}

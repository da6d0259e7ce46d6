package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"canonical url", "https://www.tiktok.com/@someuser/video/7291234567890123456", "7291234567890123456"},
		{"with query params", "https://www.tiktok.com/@someuser/video/7291234567890123456?lang=en&q=test", "7291234567890123456"},
		{"short numeric id", "https://www.tiktok.com/@u/video/42", "42"},
		{"profile url", "https://www.tiktok.com/@someuser", ""},
		{"tag url", "https://www.tiktok.com/tag/news", ""},
		{"video segment without id", "https://www.tiktok.com/@u/video/abc", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVideoID(tt.url))
		})
	}
}

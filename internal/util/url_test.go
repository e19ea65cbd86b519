package util

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsRedirectURI(t *testing.T) {
	registered := []string{"http://127.0.0.1:7777/callback", "https://agent.example.com/cb"}

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"exact loopback", "http://127.0.0.1:7777/callback", true},
		{"exact https", "https://agent.example.com/cb", true},
		{"different port", "http://127.0.0.1:7778/callback", false},
		{"path prefix", "https://agent.example.com/cb/extra", false},
		{"extra query", "https://agent.example.com/cb?x=1", false},
		{"other host", "https://evil.example.com/cb", false},
		{"empty", "", false},
		{"header injection", "https://agent.example.com/cb\r\nLocation: x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsRedirectURI(registered, tt.candidate))
		})
	}
}

func TestAppendQuery(t *testing.T) {
	got, err := AppendQuery("https://agent.example.com/cb?keep=1", url.Values{
		"code":  {"abc"},
		"state": {"s p"},
	})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "1", u.Query().Get("keep"))
	assert.Equal(t, "abc", u.Query().Get("code"))
	assert.Equal(t, "s p", u.Query().Get("state"))
	assert.Equal(t, "agent.example.com", u.Host)
}

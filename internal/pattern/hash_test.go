package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	h := NewContentHasher()

	a := h.Hash("Configure a reverse proxy", "set proxy_pass in a location block")
	b := h.Hash("Configure a reverse proxy", "set proxy_pass in a location block")

	assert.Equal(t, a.FullHash, b.FullHash)
	assert.Equal(t, a.NormalizedHash, b.NormalizedHash)
	assert.Len(t, a.FullHash, 64)
	assert.Len(t, a.NormalizedHash, 64)
}

func TestNormalizedHashIgnoresSurfaceVariation(t *testing.T) {
	h := NewContentHasher()

	a := h.Hash("Configure the reverse proxy!", "Set proxy_pass in a location block.")
	b := h.Hash("configure reverse proxy", "set proxy_pass in location block")

	assert.NotEqual(t, a.FullHash, b.FullHash)
	assert.Equal(t, a.NormalizedHash, b.NormalizedHash,
		"stopwords, case, and punctuation must not change the dedup key")
}

func TestNormalizedHashDiffersForDifferentContent(t *testing.T) {
	h := NewContentHasher()

	a := h.Hash("Configure a reverse proxy", "")
	b := h.Hash("Rotate database credentials", "")

	assert.NotEqual(t, a.NormalizedHash, b.NormalizedHash)
}

func TestNormalize(t *testing.T) {
	h := NewContentHasher()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase and sort", "Proxy Reverse", "proxy reverse"},
		{"strip punctuation", "proxy_pass, block!", "block pass proxy"},
		{"drop stopwords", "the proxy is a server", "proxy server"},
		{"empty input", "", ""},
		{"only stopwords", "the a an is", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Normalize(tt.input))
		})
	}
}

func TestQueryKey(t *testing.T) {
	h := NewContentHasher()

	a := h.QueryKey("How do I configure nginx?")
	b := h.QueryKey("how do i configure NGINX")

	assert.Len(t, a, 16)
	assert.Equal(t, a, b, "query shape key must survive case and punctuation changes")
	assert.NotEqual(t, a, h.QueryKey("rotate database credentials"))
}

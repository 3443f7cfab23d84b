package namepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchSuffix(t *testing.T) {
	p := New(".docker", "gateway")

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"exact suffix", "web.docker", true},
		{"exact suffix with dot", "web.docker.", true},
		{"nested", "a.b.web.docker", true},
		{"case insensitive", "WEB.DOCKER", true},
		{"no suffix", "web.example.com", false},
		{"too short", "er", false},
		{"bare suffix", "docker", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsMatchSuffix(tt.in))
		})
	}
}

func TestStripSuffix(t *testing.T) {
	p := New(".docker", "gateway")
	assert.Equal(t, "web", p.StripSuffix("web.docker"))
	assert.Equal(t, "web", p.StripSuffix("web.docker."))
	assert.Equal(t, "a.b.web", p.StripSuffix("a.b.web.docker."))
}

func TestStripDot(t *testing.T) {
	assert.Equal(t, "web.docker", StripDot("web.docker."))
	assert.Equal(t, "web.docker", StripDot("web.docker"))
	assert.Equal(t, "", StripDot("."))
}

func TestIsGatewayDomain(t *testing.T) {
	p := New(".docker", "gateway")
	assert.True(t, p.IsGatewayDomain("gateway.docker"))
	assert.True(t, p.IsGatewayDomain("gateway.docker."))
	assert.True(t, p.IsGatewayDomain("GATEWAY.DOCKER"))
	assert.False(t, p.IsGatewayDomain("web.docker"))
	assert.False(t, p.IsGatewayDomain("gateway.example.com"))

	disabled := New(".docker", "")
	assert.False(t, disabled.IsGatewayDomain("gateway.docker"))
}

func TestNewNormalizesSuffix(t *testing.T) {
	assert.Equal(t, ".docker", New("docker", "gateway").Suffix)
	assert.Equal(t, ".docker", New(".docker", "gateway").Suffix)
}

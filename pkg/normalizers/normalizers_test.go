package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name       string
		normalizer string
		input      string
		expected   string
	}{
		{"unaccent", "unaccent", "Jöhn Smïth", "John Smith"},
		{"unaccent keeps plain ascii", "unaccent", "John", "John"},
		{"nfkd ligature", "nfkd", "ﬁle", "file"},
		{"email", "nemail", "  JSmith@Example.COM ", "jsmith@example.com"},
		{"name collapses whitespace", "nname", " Jöhn   Smith ", "john smith"},
		{"username", "nusername", " JSmith", "jsmith"},
		{"trim", "trim", "\tvalue\n", "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, ok := Get(tt.normalizer)
			assert.True(t, ok)
			assert.Equal(t, tt.expected, fn(tt.input))
		})
	}
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "jöhn", ApplyChain(" JÖHN ", "trim", "lowercase"))
	assert.Equal(t, "x", ApplyChain("x", "unknown"))
}

func TestIsBlank(t *testing.T) {
	empty, spaces, value := "", "   ", "a"
	assert.True(t, IsBlank(nil))
	assert.True(t, IsBlank(&empty))
	assert.True(t, IsBlank(&spaces))
	assert.False(t, IsBlank(&value))
}

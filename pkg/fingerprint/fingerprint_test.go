package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
)

func ptr(s string) *string { return &s }

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		data     models.IdentityData
		expected string
	}{
		{
			name:     "all fields",
			data:     models.IdentityData{Source: "scm", Email: ptr("jsmith@example.com"), Name: ptr("John Smith"), Username: ptr("jsmith")},
			expected: "a9b403e150dd4af8953a52a4bb841051e4b705d9",
		},
		{
			name:     "email only",
			data:     models.IdentityData{Source: "scm", Email: ptr("jsmith@example.com")},
			expected: "334da68fcd3da4e799791f73dfada2afb22648c6",
		},
		{
			name:     "name only",
			data:     models.IdentityData{Source: "scm", Name: ptr("John Smith")},
			expected: "c7acd177d107a0aefa6718e2ff0dec6ceba71660",
		},
		{
			name:     "username only",
			data:     models.IdentityData{Source: "scm", Username: ptr("jsmith")},
			expected: "e38a553ae6f7e8096643bd8f22594b3577c4b14c",
		},
		{
			name:     "accents in name are ignored",
			data:     models.IdentityData{Source: "scm", Email: ptr("jsmith@example.com"), Name: ptr("Jöhn Smïth"), Username: ptr("jsmith")},
			expected: "a9b403e150dd4af8953a52a4bb841051e4b705d9",
		},
		{
			name:     "case is ignored",
			data:     models.IdentityData{Source: "SCM", Email: ptr("JSmith@example.com"), Name: ptr("JOHN SMITH"), Username: ptr("JSMITH")},
			expected: "a9b403e150dd4af8953a52a4bb841051e4b705d9",
		},
		{
			name:     "empty strings differ from null",
			data:     models.IdentityData{Source: "scm", Email: ptr(""), Name: ptr("John Smith"), Username: ptr("")},
			expected: "76e3624e24aacae178d05352ad9a871dfaf81c13",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Generate(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name      string
		data      models.IdentityData
		errorName string
	}{
		{"missing source", models.IdentityData{Email: ptr("a@b.com")}, "SOURCE_NONE_ERROR"},
		{"whitespace source", models.IdentityData{Source: "  ", Email: ptr("a@b.com")}, "SOURCE_EMPTY_ERROR"},
		{"no data", models.IdentityData{Source: "scm"}, "IDENTITY_DATA_NONE_OR_EMPTY_ERROR"},
		{"blank data", models.IdentityData{Source: "scm", Email: ptr(""), Name: ptr("  "), Username: ptr("\t")}, "IDENTITY_DATA_NONE_OR_EMPTY_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.CodeValue))

			var regErr *errors.Error
			require.ErrorAs(t, err, &regErr)
			assert.Equal(t, tt.errorName, regErr.Meta["error"])
		})
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	data := models.IdentityData{Source: "mls", Email: ptr("jroe@example.com"), Name: ptr("Jane Roe")}
	first := MustGenerate(data)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MustGenerate(data))
	}
}

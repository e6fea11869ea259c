package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sortinghat/pkg/models"
)

func identity(uuid, email, name, username string) models.Identity {
	id := models.Identity{UUID: uuid, Source: "scm"}
	if email != "" {
		id.Email = &email
	}
	if name != "" {
		id.Name = &name
	}
	if username != "" {
		id.Username = &username
	}
	return id
}

func uuids(classes [][]models.Identity) [][]string {
	out := make([][]string, len(classes))
	for i, class := range classes {
		out[i] = UUIDs(class)
	}
	return out
}

func TestNew(t *testing.T) {
	for _, name := range []string{"default", "email", "email-name", "email-name-lax"} {
		m, err := New(name, Options{})
		require.NoError(t, err)
		assert.Equal(t, name, m.Name())
	}

	_, err := New("fuzzy", Options{})
	assert.Error(t, err)
	assert.Contains(t, Names(), "email-name-lax")
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		matcher string
		a, b    models.Identity
		want    bool
	}{
		{
			name:    "same email",
			matcher: "email",
			a:       identity("a", "JSmith@Example.com", "", ""),
			b:       identity("b", "jsmith@example.com ", "", ""),
			want:    true,
		},
		{
			name:    "invalid email ignored in strict mode",
			matcher: "email",
			a:       identity("a", "jsmith", "", ""),
			b:       identity("b", "jsmith", "", ""),
			want:    false,
		},
		{
			name:    "email matcher ignores names",
			matcher: "email",
			a:       identity("a", "", "John Smith", ""),
			b:       identity("b", "", "John Smith", ""),
			want:    false,
		},
		{
			name:    "full name with accents",
			matcher: "email-name",
			a:       identity("a", "", "Jöhn  Smith", ""),
			b:       identity("b", "", "john smith", ""),
			want:    true,
		},
		{
			name:    "name with a letter unaccent keeps",
			matcher: "email-name",
			a:       identity("a", "", "Łukasz Nowak", ""),
			b:       identity("b", "", "łukasz  nowak", ""),
			want:    true,
		},
		{
			name:    "cyrillic name",
			matcher: "email-name",
			a:       identity("a", "", "Иван Петров", ""),
			b:       identity("b", "", "иван петров", ""),
			want:    true,
		},
		{
			name:    "cjk name",
			matcher: "default",
			a:       identity("a", "", "山田 太郎", ""),
			b:       identity("b", "", "山田 太郎", ""),
			want:    true,
		},
		{
			name:    "greek name",
			matcher: "email-name",
			a:       identity("a", "", "Νίκος Παππάς", ""),
			b:       identity("b", "", "νικος παππας", ""),
			want:    true,
		},
		{
			name:    "non ascii email",
			matcher: "email",
			a:       identity("a", "łukasz@przykład.pl", "", ""),
			b:       identity("b", "Łukasz@przykład.pl", "", ""),
			want:    true,
		},
		{
			name:    "single word name rejected in strict mode",
			matcher: "email-name",
			a:       identity("a", "", "jsmith", ""),
			b:       identity("b", "", "jsmith", ""),
			want:    false,
		},
		{
			name:    "single word name accepted in lax mode",
			matcher: "email-name-lax",
			a:       identity("a", "", "jsmith", ""),
			b:       identity("b", "", "jsmith", ""),
			want:    true,
		},
		{
			name:    "lax mode accepts malformed email",
			matcher: "email-name-lax",
			a:       identity("a", "jsmith@localhost", "", ""),
			b:       identity("b", "jsmith@localhost", "", ""),
			want:    true,
		},
		{
			name:    "default matches usernames",
			matcher: "default",
			a:       identity("a", "", "", "jsmith"),
			b:       identity("b", "", "", "JSmith"),
			want:    true,
		},
		{
			name:    "blank values never match",
			matcher: "default",
			a:       identity("a", " ", "", ""),
			b:       identity("b", " ", "", ""),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.matcher, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.a, tt.b))
			assert.Equal(t, tt.want, m.Match(tt.b, tt.a))
		})
	}
}

func TestExclusions(t *testing.T) {
	m, err := New("default", Options{Exclusions: map[string]bool{"root": true, "Bot@Example.com": true}})
	require.NoError(t, err)

	assert.False(t, m.Match(identity("a", "", "", "root"), identity("b", "", "", "root")))
	assert.False(t, m.Match(identity("a", "bot@example.com", "", ""), identity("b", "bot@example.com", "", "")))
	assert.True(t, m.Match(identity("a", "bot@example.com", "", "jroe"), identity("b", "", "", "jroe")))
}

func TestOptionsOverrideDefaults(t *testing.T) {
	lax, strict := false, true
	noExclusions := false
	exclusions := map[string]bool{"bot@example.com": true}

	m, err := New("default", Options{Strict: &lax})
	require.NoError(t, err)
	assert.True(t, m.Match(identity("a", "", "jsmith", ""), identity("b", "", "jsmith", "")))
	assert.True(t, m.Match(identity("a", "jsmith@localhost", "", ""), identity("b", "jsmith@localhost", "", "")))

	m, err = New("email-name-lax", Options{Strict: &strict})
	require.NoError(t, err)
	assert.False(t, m.Match(identity("a", "", "jsmith", ""), identity("b", "", "jsmith", "")))

	m, err = New("email", Options{Exclusions: exclusions})
	require.NoError(t, err)
	assert.False(t, m.Match(identity("a", "bot@example.com", "", ""), identity("b", "bot@example.com", "", "")))

	m, err = New("email", Options{Exclusions: exclusions, Exclude: &noExclusions})
	require.NoError(t, err)
	assert.True(t, m.Match(identity("a", "bot@example.com", "", ""), identity("b", "bot@example.com", "", "")))
	assert.Len(t, m.MatchFast([]models.Identity{
		identity("a", "bot@example.com", "", ""),
		identity("b", "bot@example.com", "", ""),
	}), 1)
}

func TestMatchFastTransitive(t *testing.T) {
	identities := []models.Identity{
		identity("1", "jsmith@example.com", "", ""),
		identity("2", "jroe@example.com", "", ""),
		identity("3", "jsmith@example.com", "John Smith", ""),
		identity("4", "", "John Smith", "js"),
		identity("5", "", "", "js"),
		identity("6", "jroe@example.com", "", ""),
		identity("7", "", "", ""),
	}

	m, err := New("default", Options{})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1", "3", "4", "5"}, {"2", "6"}, {"7"}}, uuids(m.MatchFast(identities)))
}

func TestFastAndPairwiseAgree(t *testing.T) {
	var identities []models.Identity
	for i := 0; i < 120; i++ {
		email := fmt.Sprintf("user%d@example.com", i%17)
		name := fmt.Sprintf("Person %d", i%23)
		username := fmt.Sprintf("u%d", i%31)
		switch i % 4 {
		case 0:
			identities = append(identities, identity(fmt.Sprint(i), email, "", ""))
		case 1:
			identities = append(identities, identity(fmt.Sprint(i), "", name, ""))
		case 2:
			identities = append(identities, identity(fmt.Sprint(i), "", "", username))
		default:
			identities = append(identities, identity(fmt.Sprint(i), "bad-email", "single", username))
		}
	}
	exclusions := map[string]bool{"u3": true, "person 5": true}

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			m, err := New(name, Options{Exclusions: exclusions})
			require.NoError(t, err)
			assert.Equal(t, uuids(Classes(m, identities)), uuids(m.MatchFast(identities)))
		})
	}
}

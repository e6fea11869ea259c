// Package matching decides which identities belong to the same person.
//
// A matcher is a set of criteria over identity fields. Two identities match
// when any criterion yields the same usable key for both; the equivalence
// classes are the transitive closure of that relation.
package matching

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/normalizers"
)

// RE2's \w and \s are ASCII only, so letters, digits and spaces are spelled
// out as Unicode classes.
var (
	emailRegex = regexp.MustCompile(`^[^\s\p{Z}@]+@[^\s\p{Z}@.]+\.[^\s\p{Z}@]+$`)
	nameRegex  = regexp.MustCompile(`^[\p{L}\p{N}_]+[\s\p{Z}][\p{L}\p{N}_]+`)
)

// Field is an identity attribute a criterion compares.
type Field string

const (
	FieldEmail    Field = "email"
	FieldName     Field = "name"
	FieldUsername Field = "username"
)

// Criterion compares one field after running it through a normalizer chain.
// In strict mode values failing Validate are ignored.
type Criterion struct {
	Field    Field
	Chain    []string
	Validate *regexp.Regexp
}

var (
	emailCriterion    = Criterion{Field: FieldEmail, Chain: []string{"nemail"}, Validate: emailRegex}
	nameCriterion     = Criterion{Field: FieldName, Chain: []string{"nname"}, Validate: nameRegex}
	usernameCriterion = Criterion{Field: FieldUsername, Chain: []string{"nusername"}}
)

// Matcher compares identities pairwise and partitions identity sets.
type Matcher interface {
	Name() string
	Match(a, b models.Identity) bool
	MatchFast(identities []models.Identity) [][]models.Identity
}

// Options tune a matcher. Nil fields keep the matcher's defaults: strict
// validation unless the matcher is a lax variant, and exclusions applied.
type Options struct {
	Exclusions map[string]bool
	// Strict drops values failing their criterion's validation.
	Strict *bool
	// Exclude applies Exclusions.
	Exclude *bool
}

func (o Options) strict(fallback bool) bool {
	if o.Strict != nil {
		return *o.Strict
	}
	return fallback
}

func (o Options) exclusions() map[string]bool {
	if o.Exclude != nil && !*o.Exclude {
		return nil
	}
	return o.Exclusions
}

// Factory builds a matcher from opts.
type Factory func(opts Options) Matcher

var registry = map[string]Factory{}

func init() {
	Register("default", criteria("default", true, emailCriterion, nameCriterion, usernameCriterion))
	Register("email", criteria("email", true, emailCriterion))
	Register("email-name", criteria("email-name", true, emailCriterion, nameCriterion))
	Register("email-name-lax", criteria("email-name-lax", false, emailCriterion, nameCriterion))
}

// Register adds a matcher factory under name, replacing any previous one.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Names lists the registered matchers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the matcher registered under name.
func New(name string, opts Options) (Matcher, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.InvalidValuef("MATCHER_NOT_SUPPORTED_ERROR", "%s matcher not supported", name)
	}
	return factory(opts), nil
}

func criteria(name string, strict bool, cs ...Criterion) Factory {
	return func(opts Options) Matcher {
		return NewCriteriaMatcher(name, opts.strict(strict), opts.exclusions(), cs...)
	}
}

// CriteriaMatcher matches on any of its criteria.
type CriteriaMatcher struct {
	name       string
	strict     bool
	criteria   []Criterion
	exclusions map[string]bool
}

func NewCriteriaMatcher(name string, strict bool, exclusions map[string]bool, cs ...Criterion) *CriteriaMatcher {
	excluded := make(map[string]bool, len(exclusions))
	for term, ok := range exclusions {
		if ok {
			excluded[strings.ToLower(strings.TrimSpace(term))] = true
		}
	}
	return &CriteriaMatcher{
		name:       name,
		strict:     strict,
		criteria:   cs,
		exclusions: excluded,
	}
}

func (m *CriteriaMatcher) Name() string {
	return m.name
}

// key returns the comparable value of identity for c, or false when the field
// is absent, excluded, or invalid in strict mode.
func (m *CriteriaMatcher) key(c Criterion, identity models.Identity) (string, bool) {
	var raw *string
	switch c.Field {
	case FieldEmail:
		raw = identity.Email
	case FieldName:
		raw = identity.Name
	case FieldUsername:
		raw = identity.Username
	}
	if normalizers.IsBlank(raw) {
		return "", false
	}
	value := strings.TrimSpace(*raw)
	if m.exclusions[strings.ToLower(value)] {
		return "", false
	}

	key := normalizers.ApplyChain(value, c.Chain...)
	if m.exclusions[key] {
		return "", false
	}
	if m.strict && c.Validate != nil && !c.Validate.MatchString(key) {
		return "", false
	}
	return key, key != ""
}

func (m *CriteriaMatcher) Match(a, b models.Identity) bool {
	for _, c := range m.criteria {
		ka, ok := m.key(c, a)
		if !ok {
			continue
		}
		if kb, ok := m.key(c, b); ok && ka == kb {
			return true
		}
	}
	return false
}

// MatchFast indexes every criterion key and unions the identities sharing
// one. Classes come out in order of their first member in identities.
func (m *CriteriaMatcher) MatchFast(identities []models.Identity) [][]models.Identity {
	uf := newUnionFind(len(identities))
	for _, c := range m.criteria {
		seen := make(map[string]int)
		for i, identity := range identities {
			key, ok := m.key(c, identity)
			if !ok {
				continue
			}
			if first, ok := seen[key]; ok {
				uf.union(first, i)
				continue
			}
			seen[key] = i
		}
	}
	return uf.classes(identities)
}

// Classes partitions identities by calling Match on every pair. It yields
// the same classes as MatchFast and exists for matchers without an index.
func Classes(m Matcher, identities []models.Identity) [][]models.Identity {
	uf := newUnionFind(len(identities))
	for i := range identities {
		for j := i + 1; j < len(identities); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if m.Match(identities[i], identities[j]) {
				uf.union(i, j)
			}
		}
	}
	return uf.classes(identities)
}

// UUIDs flattens a class to its identity uuids.
func UUIDs(class []models.Identity) []string {
	out := make([]string, len(class))
	for i, identity := range class {
		out[i] = identity.UUID
	}
	return out
}

// Package taxonomy maps raw service labels to canonical service names.
//
// A Taxonomy is built once from a CSV of canonical names and aliases plus
// optional YAML rule files, then shared read-only. Resolve tries exact alias
// lookup first and falls back to fuzzy matching, so labels derived from
// inconsistent icon file names still land on a canonical name.
package taxonomy

import (
	"sort"
	"strings"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
)

// DefaultMinFuzzyScore is the lowest fuzzy similarity accepted as a match.
const DefaultMinFuzzyScore = 0.5

// Resolver resolves a raw label to a canonical name and a confidence in [0,1].
//
// A confidence of 1 means an exact alias hit; 0 means the label could not be
// resolved and is returned unchanged for review. An empty canonical name means
// the label should be dropped.
type Resolver interface {
	Resolve(raw string) (canonical string, confidence float64)
}

// Entry is one canonical name with its aliases and optional service code.
type Entry struct {
	Canonical string
	Aliases   []string
	Code      string
}

// Rules holds the optional rule-file content merged into a taxonomy.
type Rules struct {
	// Aliases maps extra aliases to canonical names. Unknown canonical
	// names are added to the taxonomy.
	Aliases map[string]string `yaml:"aliases"`
	// Blacklist entries drop any label whose canonical key contains them.
	Blacklist []string `yaml:"blacklist"`
	// GroupMap renames service groups.
	GroupMap map[string]string `yaml:"group_map"`
}

// Option configures a Taxonomy.
type Option func(*Taxonomy)

// WithMinFuzzyScore sets the fuzzy-match cutoff. Matches scoring below it
// are treated as no match.
func WithMinFuzzyScore(score float64) Option {
	return func(t *Taxonomy) {
		t.minFuzzyScore = score
	}
}

// Taxonomy is an immutable canonical-name and alias table.
// It is safe for concurrent use.
type Taxonomy struct {
	names              []string
	canonicalToAliases map[string][]string
	codes              map[string]string
	// aliasToCanonical is keyed by lowercased alias; every canonical name is
	// also its own alias.
	aliasToCanonical map[string]string
	// canonKeys maps Canon(alias) to its canonical name when unambiguous.
	canonKeys map[string]string
	// aliasKeys are the sorted keys of aliasToCanonical, for fuzzy search.
	aliasKeys  []string
	lowerNames []string
	groupMap   map[string]string
	blacklist  []string

	minFuzzyScore float64
}

var _ Resolver = (*Taxonomy)(nil)

// New builds a taxonomy from entries and rules.
//
// Entries sharing a canonical name are merged. It fails with
// apperr.ErrConfiguration when one alias (compared case-insensitively) would
// map to two different canonical names.
func New(entries []Entry, rules Rules, opts ...Option) (*Taxonomy, error) {
	t := &Taxonomy{
		canonicalToAliases: make(map[string][]string),
		codes:              make(map[string]string),
		aliasToCanonical:   make(map[string]string),
		canonKeys:          make(map[string]string),
		groupMap:           make(map[string]string),
		minFuzzyScore:      DefaultMinFuzzyScore,
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, e := range entries {
		canonical := strings.TrimSpace(e.Canonical)
		if canonical == "" {
			continue
		}
		if err := t.add(canonical, canonical); err != nil {
			return nil, err
		}
		if code := strings.TrimSpace(e.Code); code != "" && t.codes[canonical] == "" {
			t.codes[canonical] = code
		}
		for _, a := range e.Aliases {
			if err := t.add(canonical, a); err != nil {
				return nil, err
			}
		}
	}

	aliases := make([]string, 0, len(rules.Aliases))
	for a := range rules.Aliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, a := range aliases {
		canonical := strings.TrimSpace(rules.Aliases[a])
		if canonical == "" {
			return nil, apperr.Configf("alias %q has an empty canonical name", a)
		}
		if err := t.add(canonical, canonical); err != nil {
			return nil, err
		}
		if err := t.add(canonical, a); err != nil {
			return nil, err
		}
	}

	for _, b := range rules.Blacklist {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			t.blacklist = append(t.blacklist, b)
		}
	}
	for k, v := range rules.GroupMap {
		t.groupMap[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	t.indexKeys()
	return t, nil
}

// add registers alias for canonical, creating the canonical entry if needed.
func (t *Taxonomy) add(canonical, alias string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil
	}
	if _, ok := t.canonicalToAliases[canonical]; !ok {
		t.names = append(t.names, canonical)
		t.canonicalToAliases[canonical] = nil
	}

	key := strings.ToLower(alias)
	if existing, ok := t.aliasToCanonical[key]; ok {
		if existing != canonical {
			return apperr.Configf("alias %q maps to both %q and %q", alias, existing, canonical)
		}
		return nil
	}
	t.aliasToCanonical[key] = canonical
	t.canonicalToAliases[canonical] = append(t.canonicalToAliases[canonical], alias)
	return nil
}

// indexKeys builds the derived lookup tables once all aliases are known.
func (t *Taxonomy) indexKeys() {
	t.aliasKeys = make([]string, 0, len(t.aliasToCanonical))
	ambiguous := make(map[string]bool)
	for key, canonical := range t.aliasToCanonical {
		t.aliasKeys = append(t.aliasKeys, key)

		ck := Canon(key)
		if ck == "" || ambiguous[ck] {
			continue
		}
		if existing, ok := t.canonKeys[ck]; ok && existing != canonical {
			delete(t.canonKeys, ck)
			ambiguous[ck] = true
			continue
		}
		t.canonKeys[ck] = canonical
	}
	sort.Strings(t.aliasKeys)

	t.lowerNames = make([]string, len(t.names))
	for i, n := range t.names {
		t.lowerNames[i] = strings.ToLower(n)
	}
}

// Resolve maps raw to a canonical name.
//
// Lookup order:
//  1. The lowercased label, then its Canon key, as an exact alias: confidence 1
//  2. Blacklisted labels: ("", 0)
//  3. Best fuzzy match of the Canon key against all aliases, then against
//     canonical names, if it scores at least the cutoff: confidence = score
//  4. Otherwise raw is returned unchanged with confidence 0
//
// Fuzzy candidates are visited in a fixed order, so results are
// deterministic.
func (t *Taxonomy) Resolve(raw string) (string, float64) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", 0
	}

	if c, ok := t.aliasToCanonical[strings.ToLower(s)]; ok {
		return c, 1
	}
	key := Canon(s)
	if c, ok := t.aliasToCanonical[key]; ok {
		return c, 1
	}
	if c, ok := t.canonKeys[key]; ok {
		return c, 1
	}

	if t.Blacklisted(s) {
		return "", 0
	}
	if key == "" {
		return raw, 0
	}

	if alias, score := bestMatch(key, t.aliasKeys); alias != "" && score >= t.minFuzzyScore {
		return t.aliasToCanonical[alias], score
	}
	if name, score := bestMatch(key, t.lowerNames); name != "" && score >= t.minFuzzyScore {
		for i, n := range t.lowerNames {
			if n == name {
				return t.names[i], score
			}
		}
	}
	return raw, 0
}

// Blacklisted reports whether the canonical key of text contains a
// blacklisted term.
func (t *Taxonomy) Blacklisted(text string) bool {
	key := Canon(text)
	for _, b := range t.blacklist {
		if strings.Contains(key, b) {
			return true
		}
	}
	return false
}

// NormalizeGroup applies the group map to a trimmed group name. Unmapped
// groups are returned trimmed.
func (t *Taxonomy) NormalizeGroup(group string) string {
	g := strings.TrimSpace(group)
	if g == "" {
		return ""
	}
	if mapped, ok := t.groupMap[g]; ok {
		return mapped
	}
	return g
}

// Aliases returns the aliases of canonical, including canonical itself.
func (t *Taxonomy) Aliases(canonical string) []string {
	aliases := t.canonicalToAliases[canonical]
	out := make([]string, len(aliases))
	copy(out, aliases)
	return out
}

// Code returns the service code of canonical, or "" if none was loaded.
// The first non-empty code wins when entries are merged.
func (t *Taxonomy) Code(canonical string) string {
	return t.codes[canonical]
}

// Canonical returns the canonical name for an exact (case-insensitive) alias.
func (t *Taxonomy) Canonical(alias string) (string, bool) {
	c, ok := t.aliasToCanonical[strings.ToLower(strings.TrimSpace(alias))]
	return c, ok
}

// Names returns the canonical names in load order.
func (t *Taxonomy) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of canonical names.
func (t *Taxonomy) Len() int {
	return len(t.names)
}

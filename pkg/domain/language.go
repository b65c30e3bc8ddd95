package common

import "fmt"

// Term is one entry in the ubiquitous-language registry: a canonical name,
// its definition, and any alias that must never be used in its place.
type Term struct {
	Name              string
	Definition        string
	ProhibitedAliases []string
}

// LanguageRegistry maps canonical terms to their definitions and enforces
// that prohibited aliases are reported, not silently accepted.
type LanguageRegistry struct {
	terms   map[string]Term
	byAlias map[string]string // alias -> canonical name, for fast violation lookup
}

// NewLanguageRegistry builds the registry seeded with the engine's
// ubiquitous language.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{terms: make(map[string]Term), byAlias: make(map[string]string)}
	for _, t := range defaultTerms() {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a term definition.
func (r *LanguageRegistry) Register(t Term) {
	r.terms[t.Name] = t
	for _, alias := range t.ProhibitedAliases {
		r.byAlias[alias] = t.Name
	}
}

// Lookup returns the definition of a canonical term.
func (r *LanguageRegistry) Lookup(name string) (Term, bool) {
	t, ok := r.terms[name]
	return t, ok
}

// CheckAlias reports a violation if candidate is a prohibited alias of some
// canonical term; the violation names the term that should have been used
// instead.
func (r *LanguageRegistry) CheckAlias(candidate string) error {
	if canonical, ok := r.byAlias[candidate]; ok {
		return fmt.Errorf("%q is a prohibited alias; use %q", candidate, canonical)
	}
	return nil
}

func defaultTerms() []Term {
	return []Term{
		{
			Name:              "delegation",
			Definition:        "a time-bounded grant of a permission subset from one person to another",
			ProhibitedAliases: []string{"permission grant", "authorization grant"},
		},
		{
			Name:              "fingerprint",
			Definition:        "64-character lowercase hex SHA-256 of a public key's DER encoding",
			ProhibitedAliases: []string{"key hash", "thumbprint"},
		},
		{
			Name:              "projection",
			Definition:        "a deterministic materialization of the event log to disk",
			ProhibitedAliases: []string{"cache", "snapshot"},
		},
		{
			Name:              "trust link",
			Definition:        "a verified, witnessed edge between two entities in the trust graph",
			ProhibitedAliases: []string{"relationship", "association"},
		},
	}
}

// Package sanctions screens users against locally held sanctions lists.
package sanctions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/opensource-finance/txguard/internal/domain"
)

// MatchType says how a screened value matched a listed party.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchAlias   MatchType = "alias"
	MatchFuzzy   MatchType = "fuzzy"
	MatchPartial MatchType = "partial"
)

// Confidence of the non-scored match types.
const (
	ExactConfidence = 1.0
	AliasConfidence = 0.95

	// DefaultFuzzyThreshold is the minimum confidence a fuzzy or partial
	// match needs to count as a hit.
	DefaultFuzzyThreshold = 0.85

	// Names shorter than this are only matched exactly or by alias, so
	// identifiers such as USER 001 and USER 002 never collide.
	minFuzzyLength = 10
)

// Match is one hit against a list entry.
type Match struct {
	Name       string    `json:"name"`
	List       string    `json:"list"`
	Type       MatchType `json:"type"`
	Confidence float64   `json:"confidence"`
}

// EntrySource supplies persisted list entries. domain.Repository satisfies it.
type EntrySource interface {
	ListSanctionsEntries(ctx context.Context) ([]*domain.SanctionsEntry, error)
}

// party is a held entry with its normalized keys.
type party struct {
	name    string
	list    string
	key     string
	aliases []string
}

// Screener matches normalized names and aliases exactly, then scores the
// remaining parties for fuzzy and partial similarity. It implements
// domain.SanctionsScreener and is safe for concurrent use.
type Screener struct {
	mu        sync.RWMutex
	index     map[string][]Match
	parties   []party
	disabled  map[string]bool
	threshold float64
}

// NewScreener creates a screener holding the given entries.
func NewScreener(entries ...*domain.SanctionsEntry) *Screener {
	s := &Screener{
		index:     make(map[string][]Match),
		disabled:  make(map[string]bool),
		threshold: DefaultFuzzyThreshold,
	}
	for _, e := range entries {
		s.add(e)
	}
	return s
}

// Load replaces the held entries with those from src. List settings and
// the fuzzy threshold are kept.
func (s *Screener) Load(ctx context.Context, src EntrySource) error {
	entries, err := src.ListSanctionsEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sanctions entries: %w", err)
	}

	next := NewScreener(entries...)

	s.mu.Lock()
	s.index = next.index
	s.parties = next.parties
	s.mu.Unlock()
	return nil
}

// Add inserts a single entry.
func (s *Screener) Add(entry *domain.SanctionsEntry) error {
	if entry == nil || Normalize(entry.Name) == "" {
		return fmt.Errorf("sanctions entry name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(entry)
	return nil
}

func (s *Screener) add(entry *domain.SanctionsEntry) {
	name := Normalize(entry.Name)
	if name == "" {
		return
	}
	p := party{name: entry.Name, list: entry.List, key: name}
	s.index[name] = append(s.index[name], Match{Name: entry.Name, List: entry.List, Type: MatchExact, Confidence: ExactConfidence})
	for _, alias := range entry.Aliases {
		if a := Normalize(alias); a != "" && a != name {
			p.aliases = append(p.aliases, a)
			s.index[a] = append(s.index[a], Match{Name: entry.Name, List: entry.List, Type: MatchAlias, Confidence: AliasConfidence})
		}
	}
	s.parties = append(s.parties, p)
}

// DisableList stops matching entries from list. Entries stay held.
func (s *Screener) DisableList(list string) {
	s.mu.Lock()
	s.disabled[list] = true
	s.mu.Unlock()
}

// EnableList resumes matching entries from list.
func (s *Screener) EnableList(list string) {
	s.mu.Lock()
	delete(s.disabled, list)
	s.mu.Unlock()
}

// ListEnabled reports whether entries from list are matched.
func (s *Screener) ListEnabled(list string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled[list]
}

// SetFuzzyThreshold sets the minimum confidence for fuzzy and partial
// matches, clamped to [0.5, 1]. At 1 only exact and alias hits count.
func (s *Screener) SetFuzzyThreshold(threshold float64) {
	threshold = min(max(threshold, 0.5), 1)
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
}

// Matches returns every listed party matching value on an enabled list,
// at most one per party, ordered by confidence with exact hits first.
func (s *Screener) Matches(value string) []Match {
	key := Normalize(value)
	if key == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Match{}
	seen := make(map[string]bool)
	for _, h := range s.index[key] {
		id := h.List + "\x00" + h.Name
		if s.disabled[h.List] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, h)
	}

	if s.threshold < 1 {
		for _, p := range s.parties {
			id := p.list + "\x00" + p.name
			if s.disabled[p.list] || seen[id] {
				continue
			}
			if m, ok := p.score(key); ok && m.Confidence >= s.threshold {
				seen[id] = true
				out = append(out, m)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Type == MatchExact && out[j].Type != MatchExact
	})
	return out
}

// score returns the better of the fuzzy and partial matches of key
// against the party's primary name.
func (p party) score(key string) (Match, bool) {
	best := Match{Name: p.name, List: p.list}
	if len(key) < minFuzzyLength || len(p.key) < minFuzzyLength {
		return best, false
	}

	if sim := Similarity(key, p.key); sim > best.Confidence {
		best.Type, best.Confidence = MatchFuzzy, sim
	}
	if containsWords(p.key, key) || containsWords(key, p.key) {
		shorter, longer := len(key), len(p.key)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		partial := 0.7 + 0.2*float64(shorter)/float64(longer)
		if partial > best.Confidence {
			best.Type, best.Confidence = MatchPartial, partial
		}
	}
	return best, best.Type != ""
}

// Similarity scores two normalized names in [0, 1]. It is the larger of the
// edit-distance similarity and a blend of 40% edit similarity with 60% word
// overlap (Jaccard), so both misspellings and shared words score.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := max(len(a), len(b))
	edit := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)

	wordsA := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		wordsA[w] = true
	}
	wordsB := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		wordsB[w] = true
	}
	common := 0
	for w := range wordsA {
		if wordsB[w] {
			common++
		}
	}
	union := len(wordsA) + len(wordsB) - common
	words := float64(common) / float64(union)

	return max(edit, 0.4*edit+0.6*words)
}

// containsWords reports whether needle appears in haystack on word
// boundaries.
func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// Screen reports true when userID matches no listed party.
func (s *Screener) Screen(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return len(s.Matches(userID)) == 0, nil
}

// Len returns the number of held entries.
func (s *Screener) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parties)
}

// Normalize case-folds a name, drops punctuation and collapses whitespace.
// Hyphens and underscores separate words.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsSpace(r) || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

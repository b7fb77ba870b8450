// Package geo scores transactions by the risk of the countries they move
// between. Scorer implements domain.FraudHeuristics.
package geo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/txguard/internal/domain"
)

// Level is a country or route risk level.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelProhibited
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return "prohibited"
	}
}

// FATF list statuses.
const (
	FATFBlacklist = "blacklist"
	FATFGreylist  = "greylist"
)

// Country is one entry of the risk table.
type Country struct {
	Code  string
	Name  string
	Level Level
	Score int // 0-100
	FATF  string
}

// RequiresEDD reports whether the country triggers enhanced due diligence.
func (c Country) RequiresEDD() bool {
	return c.Level >= LevelHigh
}

// DefaultCountries is the built-in risk table.
func DefaultCountries() []Country {
	return []Country{
		{Code: "IR", Name: "Iran", Level: LevelProhibited, Score: 100, FATF: FATFBlacklist},
		{Code: "KP", Name: "North Korea", Level: LevelProhibited, Score: 100, FATF: FATFBlacklist},
		{Code: "SY", Name: "Syria", Level: LevelProhibited, Score: 95},
		{Code: "MM", Name: "Myanmar", Level: LevelHigh, Score: 80, FATF: FATFGreylist},
		{Code: "YE", Name: "Yemen", Level: LevelHigh, Score: 75},
		{Code: "PK", Name: "Pakistan", Level: LevelMedium, Score: 55, FATF: FATFGreylist},
		{Code: "US", Name: "United States", Level: LevelLow, Score: 10},
		{Code: "GB", Name: "United Kingdom", Level: LevelLow, Score: 10},
		{Code: "DE", Name: "Germany", Level: LevelLow, Score: 10},
	}
}

// Scores used for routes.
const (
	unknownScore     = 50
	originShare      = 40
	destinationShare = 60
	highScore        = 70
	mediumScore      = 40
)

// Signal names and weights contributed to the fraud score.
const (
	SignalProhibited = "geo_prohibited"
	SignalHighRisk   = "geo_high_risk"
	SignalMediumRisk = "geo_medium_risk"

	ProhibitedWeight = 100
	HighRiskWeight   = 30
	MediumRiskWeight = 10
)

// Assessment is the risk of one origin to destination route.
type Assessment struct {
	Origin      string
	Destination string
	Score       int
	Level       Level
	Prohibited  bool
	RequiresEDD bool
	FATF        []string
}

// Scorer holds the country table. It is read-only after construction and
// safe for concurrent use.
type Scorer struct {
	countries map[string]Country
}

// NewScorer creates a scorer. With no countries it uses DefaultCountries.
func NewScorer(countries ...Country) *Scorer {
	if len(countries) == 0 {
		countries = DefaultCountries()
	}
	s := &Scorer{countries: make(map[string]Country, len(countries))}
	for _, c := range countries {
		c.Code = normalizeCode(c.Code)
		s.countries[c.Code] = c
	}
	return s
}

// Country looks up a country by ISO code, case-insensitively.
func (s *Scorer) Country(code string) (Country, bool) {
	c, ok := s.countries[normalizeCode(code)]
	return c, ok
}

// Prohibited returns the prohibited country codes, sorted.
func (s *Scorer) Prohibited() []string {
	var codes []string
	for code, c := range s.countries {
		if c.Level == LevelProhibited {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Assess scores a route. Unknown countries score 50. The destination
// weighs 60% and the origin 40%; a prohibited country on either end makes
// the route prohibited.
func (s *Scorer) Assess(origin, destination string) Assessment {
	a := Assessment{Origin: normalizeCode(origin), Destination: normalizeCode(destination)}

	originScore, destScore := unknownScore, unknownScore
	for i, code := range []string{a.Origin, a.Destination} {
		c, ok := s.countries[code]
		if !ok {
			continue
		}
		if i == 0 {
			originScore = c.Score
		} else {
			destScore = c.Score
		}
		a.Prohibited = a.Prohibited || c.Level == LevelProhibited
		a.RequiresEDD = a.RequiresEDD || c.RequiresEDD()
		if c.FATF != "" {
			a.FATF = append(a.FATF, fmt.Sprintf("%s %s", c.Code, c.FATF))
		}
	}
	a.Score = (originScore*originShare + destScore*destinationShare) / 100

	switch {
	case a.Prohibited:
		a.Level = LevelProhibited
	case a.Score >= highScore:
		a.Level = LevelHigh
	case a.Score >= mediumScore:
		a.Level = LevelMedium
	default:
		a.Level = LevelLow
	}
	return a
}

// Evaluate reads origin_country and destination_country from metadata.
// A transaction naming neither contributes nothing; a missing side is
// taken to equal the other.
func (s *Scorer) Evaluate(tx *domain.Transaction) []domain.FraudSignal {
	if tx == nil {
		return nil
	}
	origin, _ := tx.MetadataValue(domain.MetaOriginCountry)
	dest, _ := tx.MetadataValue(domain.MetaDestinationCountry)
	origin, dest = strings.TrimSpace(origin), strings.TrimSpace(dest)
	switch {
	case origin == "" && dest == "":
		return nil
	case origin == "":
		origin = dest
	case dest == "":
		dest = origin
	}

	a := s.Assess(origin, dest)
	route := a.Origin + "->" + a.Destination

	switch {
	case a.Prohibited:
		return []domain.FraudSignal{{
			Name:    SignalProhibited,
			Family:  domain.FamilyPattern,
			Weight:  ProhibitedWeight,
			Warning: fmt.Sprintf("prohibited jurisdiction on route %s", route),
		}}
	case a.Level == LevelHigh || a.RequiresEDD:
		warning := fmt.Sprintf("high-risk jurisdiction on route %s: enhanced due diligence required", route)
		if len(a.FATF) > 0 {
			warning += " (FATF " + strings.Join(a.FATF, ", ") + ")"
		}
		return []domain.FraudSignal{{
			Name:    SignalHighRisk,
			Family:  domain.FamilyPattern,
			Weight:  HighRiskWeight,
			Warning: warning,
		}}
	case a.Level == LevelMedium:
		return []domain.FraudSignal{{
			Name:    SignalMediumRisk,
			Family:  domain.FamilyPattern,
			Weight:  MediumRiskWeight,
			Warning: fmt.Sprintf("medium geographic risk on route %s (score %d)", route, a.Score),
		}}
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package geo

import (
	"strings"
	"testing"

	"github.com/opensource-finance/txguard/internal/domain"
)

func TestAssess(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name        string
		origin      string
		destination string
		level       Level
		score       int
		edd         bool
	}{
		{"LowRisk", "US", "GB", LevelLow, 10, false},
		{"LowerCase", "us", " de ", LevelLow, 10, false},
		{"ProhibitedDestination", "US", "IR", LevelProhibited, 64, true},
		{"ProhibitedOrigin", "KP", "US", LevelProhibited, 46, true},
		{"HighRiskNeedsEDD", "US", "MM", LevelMedium, 52, true},
		{"HighRiskRoute", "YE", "MM", LevelHigh, 78, true},
		{"Unknown", "XX", "YY", LevelMedium, 50, false},
		{"GreylistDomestic", "PK", "PK", LevelMedium, 55, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Assess(tt.origin, tt.destination)
			if a.Level != tt.level || a.Score != tt.score || a.RequiresEDD != tt.edd {
				t.Errorf("expected %s/%d/edd=%v, got %s/%d/edd=%v", tt.level, tt.score, tt.edd, a.Level, a.Score, a.RequiresEDD)
			}
			if a.Prohibited != (tt.level == LevelProhibited) {
				t.Errorf("unexpected prohibited=%v", a.Prohibited)
			}
		})
	}
}

func TestCountryLookup(t *testing.T) {
	s := NewScorer()

	iran, ok := s.Country("ir")
	if !ok || iran.Level != LevelProhibited || iran.FATF != FATFBlacklist {
		t.Errorf("unexpected Iran entry %+v", iran)
	}
	us, _ := s.Country("US")
	if us.RequiresEDD() || us.FATF != "" {
		t.Errorf("unexpected US entry %+v", us)
	}
	if _, ok := s.Country("ZZ"); ok {
		t.Error("expected unknown country lookup to fail")
	}

	prohibited := s.Prohibited()
	if strings.Join(prohibited, ",") != "IR,KP,SY" {
		t.Errorf("expected [IR KP SY], got %v", prohibited)
	}

	custom := NewScorer(Country{Code: "zz", Level: LevelHigh, Score: 90})
	if c, ok := custom.Country("ZZ"); !ok || !c.RequiresEDD() {
		t.Errorf("expected custom table to replace defaults, got %+v", c)
	}
	if _, ok := custom.Country("US"); ok {
		t.Error("custom table must not include defaults")
	}
}

func TestEvaluate(t *testing.T) {
	s := NewScorer()
	tx := func(meta map[string]string) *domain.Transaction {
		return &domain.Transaction{ID: "tx-geo", Type: domain.TypeTransfer, Metadata: meta}
	}

	tests := []struct {
		name   string
		meta   map[string]string
		signal string
		weight int
	}{
		{"NoCountries", nil, "", 0},
		{"LowRoute", map[string]string{domain.MetaOriginCountry: "US", domain.MetaDestinationCountry: "GB"}, "", 0},
		{"Prohibited", map[string]string{domain.MetaOriginCountry: "US", domain.MetaDestinationCountry: "IR"}, SignalProhibited, ProhibitedWeight},
		{"EnhancedDueDiligence", map[string]string{domain.MetaOriginCountry: "US", domain.MetaDestinationCountry: "MM"}, SignalHighRisk, HighRiskWeight},
		{"UnknownRoute", map[string]string{domain.MetaOriginCountry: "XX", domain.MetaDestinationCountry: "YY"}, SignalMediumRisk, MediumRiskWeight},
		{"DestinationOnly", map[string]string{domain.MetaDestinationCountry: "kp"}, SignalProhibited, ProhibitedWeight},
		{"OriginOnly", map[string]string{domain.MetaOriginCountry: "DE"}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := s.Evaluate(tx(tt.meta))
			if tt.signal == "" {
				if len(signals) != 0 {
					t.Errorf("expected no signal, got %+v", signals)
				}
				return
			}
			if len(signals) != 1 {
				t.Fatalf("expected one signal, got %+v", signals)
			}
			if signals[0].Name != tt.signal || signals[0].Weight != tt.weight || signals[0].Warning == "" {
				t.Errorf("unexpected signal %+v", signals[0])
			}
		})
	}

	high := s.Evaluate(tx(map[string]string{domain.MetaOriginCountry: "US", domain.MetaDestinationCountry: "MM"}))
	if !strings.Contains(high[0].Warning, "FATF MM greylist") {
		t.Errorf("expected FATF status in warning, got %q", high[0].Warning)
	}
	if s.Evaluate(nil) != nil {
		t.Error("expected nil transaction to contribute nothing")
	}
}

package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// RiskLevel is the discrete risk assigned to a hotspot. The zero value means
// the record has not been classified yet.
type RiskLevel uint8

const (
	RiskUnclassified RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// RiskLevels lists the classified levels in ascending order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return ""
	}
}

// ParseRiskLevel accepts the names produced by String, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for _, l := range RiskLevels {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return RiskUnclassified, fmt.Errorf("unknown risk level %q", s)
}

func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *RiskLevel) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*l = RiskUnclassified
		return nil
	}
	parsed, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// escalate raises the level by one step, capped at Critical.
func (l RiskLevel) escalate() RiskLevel {
	if l >= RiskCritical {
		return RiskCritical
	}
	return l + 1
}

// Thresholds are the FRP (MW) lower bounds of the Medium, High, and Critical tiers.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// Validate checks 0 <= Medium < High < Critical.
func (t Thresholds) Validate() error {
	if t.Medium < 0 || math.IsNaN(t.Medium) || math.IsNaN(t.High) || math.IsNaN(t.Critical) {
		return errors.New("FRP thresholds must be non-negative numbers")
	}
	if t.Medium >= t.High || t.High >= t.Critical {
		return fmt.Errorf("FRP thresholds must be strictly increasing, got %g < %g < %g", t.Medium, t.High, t.Critical)
	}
	return nil
}

// Tier maps an FRP lower bound to a base risk level.
type Tier struct {
	MinFRP float64
	Level  RiskLevel
}

// Tiers returns the ordered tier table, lowest bound first.
func (t Thresholds) Tiers() []Tier {
	return []Tier{
		{MinFRP: 0, Level: RiskLow},
		{MinFRP: t.Medium, Level: RiskMedium},
		{MinFRP: t.High, Level: RiskHigh},
		{MinFRP: t.Critical, Level: RiskCritical},
	}
}

// SensitivityPolicy decides whether a biome name escalates risk.
type SensitivityPolicy interface {
	IsSensitive(biome string) bool
}

// SensitiveSet is a SensitivityPolicy over a fixed list of biome names,
// matched case- and accent-insensitively.
type SensitiveSet map[string]struct{}

// NewSensitiveSet builds a set from display names such as "Amazônia".
func NewSensitiveSet(names ...string) SensitiveSet {
	s := make(SensitiveSet, len(names))
	for _, n := range names {
		if f := FoldName(n); f != "" {
			s[f] = struct{}{}
		}
	}
	return s
}

func (s SensitiveSet) IsSensitive(biome string) bool {
	_, ok := s[FoldName(biome)]
	return ok
}

// Classifier derives a RiskLevel from FRP and biome sensitivity.
type Classifier struct {
	tiers     []Tier
	sensitive SensitivityPolicy
}

// NewClassifier creates a Classifier. Thresholds are expected to be validated by the caller.
func NewClassifier(thresholds Thresholds, sensitive SensitivityPolicy) *Classifier {
	if sensitive == nil {
		sensitive = SensitiveSet{}
	}
	return &Classifier{tiers: thresholds.Tiers(), sensitive: sensitive}
}

// Classify is total: every FRP (NaN and negatives fall into the lowest tier)
// and every biome maps to exactly one of Low, Medium, High, Critical.
func (c *Classifier) Classify(r HotspotRecord) RiskLevel {
	level := c.baseTier(r.FRP).Level
	if c.escalates(r.Biome) {
		level = level.escalate()
	}
	return level
}

// Apply classifies the record and stamps the level, reasons, and classification time.
func (c *Classifier) Apply(r HotspotRecord) HotspotRecord {
	tier := c.baseTier(r.FRP)
	level := tier.Level
	var reasons []string
	if tier.Level > RiskLow {
		reasons = append(reasons, fmt.Sprintf("FRP %.2f MW >= %g MW", r.FRP, tier.MinFRP))
	}
	if c.escalates(r.Biome) {
		level = level.escalate()
		reasons = append(reasons, fmt.Sprintf("sensitive biome (%s)", r.Biome))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no risk criterion met")
	}

	r.Risk = level
	r.RiskReasons = reasons
	r.ClassifiedAt = clock.Now().UTC()
	return r
}

func (c *Classifier) baseTier(frp float64) Tier {
	base := c.tiers[0]
	if math.IsNaN(frp) {
		return base
	}
	for _, t := range c.tiers[1:] {
		if frp >= t.MinFRP {
			base = t
		}
	}
	return base
}

// escalates treats empty and Unknown biomes as not sensitive.
func (c *Classifier) escalates(biome string) bool {
	if biome == "" || biome == BiomeUnknown {
		return false
	}
	return c.sensitive.IsSensitive(biome)
}

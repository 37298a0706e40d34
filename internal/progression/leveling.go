// Package progression holds the XP rules: level thresholds, award amounts,
// the level cascade and the XP event log produced while applying awards.
package progression

import "math"

// Curve describes a threshold progression of the form floor(Base * level^Exponent).
type Curve struct {
	Base     float64
	Exponent float64
}

var (
	// ProfileCurve governs the overall student level.
	ProfileCurve = Curve{Base: 100, Exponent: 1.6}
	// SkillCurve governs per-skill levels.
	SkillCurve = Curve{Base: 75, Exponent: 1.4}
)

// Threshold returns the XP required to advance from level to level+1.
// Levels below 1 are treated as level 1.
func (c Curve) Threshold(level int) int {
	if level < 1 {
		level = 1
	}
	v := c.Base * math.Pow(float64(level), c.Exponent)
	// math.Pow is off by an ulp on exact powers (e.g. 32^1.6 = 256).
	if r := math.Round(v); math.Abs(v-r) < 1e-9 {
		return int(r)
	}
	return int(math.Floor(v))
}

// ProfileThreshold is the XP needed to leave the given profile level.
func ProfileThreshold(level int) int {
	return ProfileCurve.Threshold(level)
}

// SkillThreshold is the XP needed to leave the given skill level.
func SkillThreshold(level int) int {
	return SkillCurve.Threshold(level)
}

// Package scoring holds the report confidence policy. It is pure: no storage,
// no clock.
package scoring

import (
	"math"

	types "github.com/migralert/migralert-backend/internal/domain"
)

const (
	MinScore = 0
	MaxScore = 100
)

type ConfidenceLevel string

const (
	LevelHigh    ConfidenceLevel = "high"
	LevelMedium  ConfidenceLevel = "medium"
	LevelLow     ConfidenceLevel = "low"
	LevelPending ConfidenceLevel = "pending"
)

type Scorer struct {
	policy Policy
}

func NewScorer(p Policy) *Scorer {
	return &Scorer{policy: p}
}

// Default uses DefaultPolicy.
func Default() *Scorer { return NewScorer(DefaultPolicy()) }

func (s *Scorer) Policy() Policy { return s.policy }

func (s *Scorer) InitialScore(hasPhoto bool) int {
	if hasPhoto {
		return Clamp(s.policy.Initial.WithPhoto)
	}
	return Clamp(s.policy.Initial.WithoutPhoto)
}

// Apply returns the score after one interaction. Unknown types leave the
// score unchanged.
func (s *Scorer) Apply(current int, t types.InteractionType) int {
	cur := Clamp(current)
	switch t {
	case types.InteractionConfirm:
		return Clamp(cur + step(MaxScore-cur, s.policy.Rates.Confirm))
	case types.InteractionNoLongerActive:
		return Clamp(cur - step(cur, s.policy.Rates.NoLongerActive))
	case types.InteractionFalse:
		return Clamp(cur - step(cur, s.policy.Rates.False))
	default:
		return cur
	}
}

func (s *Scorer) Level(score int) ConfidenceLevel {
	switch {
	case score >= s.policy.Levels.High:
		return LevelHigh
	case score >= s.policy.Levels.Medium:
		return LevelMedium
	case score >= s.policy.Levels.Low:
		return LevelLow
	default:
		return LevelPending
	}
}

func (s *Scorer) ShouldVerify(score, confirms int) bool {
	t := s.policy.Transitions
	return score >= t.VerifyThreshold && confirms >= t.VerifyMinConfirms
}

func (s *Scorer) ShouldRemove(score, falseReports int) bool {
	t := s.policy.Transitions
	return score <= t.RemoveThreshold && falseReports >= t.RemoveMinFalse
}

// NextStatus applies the verify/remove transitions. Removed is terminal.
func (s *Scorer) NextStatus(cur types.ReportStatus, score, confirms, falseReports int) types.ReportStatus {
	if cur == types.ReportStatusRemoved {
		return cur
	}
	if s.ShouldRemove(score, falseReports) {
		return types.ReportStatusRemoved
	}
	if cur == types.ReportStatusPending && s.ShouldVerify(score, confirms) {
		return types.ReportStatusVerified
	}
	return cur
}

func Clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

func step(distance int, rate float64) int {
	if distance <= 0 {
		return 0
	}
	// The epsilon keeps products like 30*0.2 from rounding up to 7.
	return int(math.Ceil(float64(distance)*rate - 1e-9))
}

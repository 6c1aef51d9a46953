package domain

import "math"

// Accepted input ranges for a logged chore.
const (
	MinDurationSeconds   = 60
	MaxDurationSeconds   = 7200
	MinIntensity         = 1.0
	MaxIntensity         = 10.0
	MinCompletionPercent = 70
	MaxCompletionPercent = 100
	MaxTaskNameLength    = 50

	// BonusCompletionPercent is the completion threshold that unlocks BonusMultiplier.
	BonusCompletionPercent = 95
	BonusMultiplier        = 1.1
	BaseMultiplier         = 1.0
)

// PointsResult is the outcome of a points calculation.
type PointsResult struct {
	Points          int
	BonusMultiplier float64
}

// CalculatePoints converts a completed chore into points.
//
// base = (durationSeconds / 60) * intensity * 10, multiplied by 1.1 when the
// completion percentage reaches 95 and truncated with floor. Inputs are
// expected to have been validated already.
func CalculatePoints(durationSeconds int, intensity float64, completionPercentage int) PointsResult {
	multiplier := BaseMultiplier
	if completionPercentage >= BonusCompletionPercent {
		multiplier = BonusMultiplier
	}
	base := (float64(durationSeconds) / 60) * intensity * 10
	return PointsResult{
		Points:          int(math.Floor(base * multiplier)),
		BonusMultiplier: multiplier,
	}
}

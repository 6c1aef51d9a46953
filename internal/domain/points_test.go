package domain

import "testing"

func TestCalculatePoints(t *testing.T) {
	cases := []struct {
		name       string
		duration   int
		intensity  float64
		completion int
		points     int
		multiplier float64
	}{
		{name: "twenty minutes at 3.5 METs", duration: 1200, intensity: 3.5, completion: 80, points: 700, multiplier: 1.0},
		{name: "twenty minutes at 3.5 METs with bonus", duration: 1200, intensity: 3.5, completion: 95, points: 770, multiplier: 1.1},
		{name: "no bonus below threshold", duration: 600, intensity: 7, completion: 90, points: 700, multiplier: 1.0},
		{name: "bonus at threshold", duration: 600, intensity: 7, completion: 95, points: 770, multiplier: 1.1},
		{name: "bonus at full completion", duration: 600, intensity: 7, completion: 100, points: 770, multiplier: 1.1},
		{name: "minimum inputs", duration: 60, intensity: 1, completion: 70, points: 10, multiplier: 1.0},
		{name: "maximum inputs", duration: 7200, intensity: 10, completion: 100, points: 13200, multiplier: 1.1},
		{name: "fractional minutes floor", duration: 90, intensity: 3.3, completion: 80, points: 49, multiplier: 1.0},
		{name: "fractional with bonus floors", duration: 125, intensity: 4.5, completion: 96, points: 103, multiplier: 1.1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculatePoints(tc.duration, tc.intensity, tc.completion)
			if got.Points != tc.points {
				t.Fatalf("expected %d points got %d", tc.points, got.Points)
			}
			if got.BonusMultiplier != tc.multiplier {
				t.Fatalf("expected multiplier %.1f got %.1f", tc.multiplier, got.BonusMultiplier)
			}
		})
	}
}

func TestCalculatePointsIsMonotonicInDuration(t *testing.T) {
	prev := -1
	for d := MinDurationSeconds; d <= MaxDurationSeconds; d += 37 {
		got := CalculatePoints(d, 2.5, 80).Points
		if got < prev {
			t.Fatalf("points decreased at %ds: %d < %d", d, got, prev)
		}
		prev = got
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import "math"

// Calories estimates energy from the step count:
//
//	floor(steps * coefficient * (movingBonus if moving else 1))
func Calories(steps int, moving bool, coefficient, movingBonus float64) int {
	factor := 1.0
	if moving {
		factor = movingBonus
	}
	return int(math.Floor(float64(steps) * coefficient * factor))
}

// GoalProgress returns steps/goal clamped to [0, 1]. Display only.
func GoalProgress(steps, goal int) float64 {
	if goal <= 0 || steps <= 0 {
		return 0
	}
	return math.Min(float64(steps)/float64(goal), 1)
}

package scoring

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// SOHScore rates state of health: 100 from 90% up, two points per percent
// between 60 and 90, and 0.67 per percent below 60.
func SOHScore(soh float64) float64 {
	switch {
	case soh >= 90:
		return 100
	case soh >= 80:
		return 80 + (soh-80)*2
	case soh >= 70:
		return 60 + (soh-70)*2
	case soh >= 60:
		return 40 + (soh-60)*2
	default:
		return soh * 0.67
	}
}

// HealthScore rates the composite health index on the same breakpoints as
// SOHScore with a slope of one.
func HealthScore(h float64) float64 {
	switch {
	case h >= 90:
		return 100
	case h >= 80:
		return 80 + (h - 80)
	case h >= 70:
		return 60 + (h - 70)
	case h >= 60:
		return 40 + (h - 60)
	default:
		return h * 0.67
	}
}

// BalanceScore rates the cell balance index. Lower is better; the score
// never drops below 20.
func BalanceScore(b float64) float64 {
	switch {
	case b <= 0.5:
		return 100
	case b <= 1.0:
		return 90 - (b-0.5)*20
	case b <= 2.0:
		return 80 - (b-1.0)*10
	case b <= 3.0:
		return 70 - (b-2.0)*10
	default:
		return math.Max(20, 60-(b-3.0)*5)
	}
}

// FreshnessScore steps down with the time since the last update.
func FreshnessScore(since time.Duration) float64 {
	switch {
	case since <= 7*day:
		return 100
	case since <= 30*day:
		return 80
	case since <= 90*day:
		return 60
	default:
		return 40
	}
}

// ActivityScore rates the odometer reading, saturating at 10,000 km.
func ActivityScore(km float64) float64 {
	switch {
	case km >= 10000:
		return 100
	case km >= 5000:
		return 80 + (km-5000)/5000*20
	case km >= 1000:
		return 60 + (km-1000)/4000*20
	case km >= 100:
		return 40 + (km-100)/900*20
	default:
		return km / 100 * 40
	}
}

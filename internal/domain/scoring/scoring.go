// Package scoring combines battery indicators into an overall vehicle score,
// a grade and a fleet-wide rank.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/okian/evpulse/internal/domain/cohort"
	"github.com/okian/evpulse/internal/domain/telemetry"
)

const maxScoreValue = 100

// Weights of each sub-score in the overall score. They sum to 1.
type Weights struct {
	SOH       float64
	Health    float64
	Balance   float64
	Freshness float64
	Activity  float64
}

// DefaultWeights are the production weights.
var DefaultWeights = Weights{SOH: 0.30, Health: 0.25, Balance: 0.20, Freshness: 0.15, Activity: 0.10}

func (w Weights) sum() float64 {
	return w.SOH + w.Health + w.Balance + w.Freshness + w.Activity
}

// Grade is the label attached to an overall score.
type Grade string

// Grades, best first.
const (
	Excellent Grade = "excellent"
	Good      Grade = "good"
	Average   Grade = "average"
	Caution   Grade = "caution"
	Poor      Grade = "poor"
)

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights replaces the sub-score weights. Weights that do not sum to 1
// (within a small tolerance) or contain a negative entry are ignored.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		if w.SOH < 0 || w.Health < 0 || w.Balance < 0 || w.Freshness < 0 || w.Activity < 0 {
			return
		}
		if math.Abs(w.sum()-1) > 1e-9 {
			return
		}
		s.weights = w
	}
}

// Input abstracts the device fields needed for scoring.
type Input struct {
	DeviceID    string
	CarType     string
	SOH         float64
	Health      float64
	CellBalance float64
	Odometer    float64
	LastUpdated time.Time
}

// InputFrom builds a scoring input from a cohort snapshot.
func InputFrom(v cohort.Vitals) Input {
	return Input{
		DeviceID:    v.DeviceID,
		CarType:     v.CarType,
		SOH:         v.SOH,
		Health:      v.Health,
		CellBalance: v.CellBalance,
		Odometer:    v.Odometer,
		LastUpdated: v.LastUpdated,
	}
}

// Result contains the computed scores for one device. Rank is 0 until the
// result passes through Rank.
type Result struct {
	DeviceID       string    `json:"device_id"`
	CarType        string    `json:"car_type"`
	SOH            float64   `json:"soh"`
	Health         float64   `json:"composite_health_index"`
	CellBalance    float64   `json:"cell_balance_index"`
	Odometer       float64   `json:"odometer"`
	LastUpdated    time.Time `json:"last_updated"`
	SOHScore       float64   `json:"soh_score"`
	HealthScore    float64   `json:"health_score"`
	BalanceScore   float64   `json:"balance_score"`
	FreshnessScore float64   `json:"freshness_score"`
	ActivityScore  float64   `json:"activity_score"`
	Overall        float64   `json:"overall_score"`
	Grade          Grade     `json:"performance_grade"`
	Rank           int       `json:"rank"`
}

// Scorer computes device scores. It keeps no state between calls; the
// reference time for freshness is always passed in.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the default weights and the given options.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{weights: DefaultWeights}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes every sub-score and the weighted overall score for in,
// measuring freshness against now.
func (s *Scorer) Score(in Input, now time.Time) Result {
	r := Result{
		DeviceID:       in.DeviceID,
		CarType:        in.CarType,
		SOH:            in.SOH,
		Health:         in.Health,
		CellBalance:    in.CellBalance,
		Odometer:       in.Odometer,
		LastUpdated:    in.LastUpdated,
		SOHScore:       SOHScore(in.SOH),
		HealthScore:    HealthScore(in.Health),
		BalanceScore:   BalanceScore(in.CellBalance),
		FreshnessScore: FreshnessScore(now.Sub(in.LastUpdated)),
		ActivityScore:  ActivityScore(in.Odometer),
	}
	w := s.weights
	overall := w.SOH*r.SOHScore +
		w.Health*r.HealthScore +
		w.Balance*r.BalanceScore +
		w.Freshness*r.FreshnessScore +
		w.Activity*r.ActivityScore
	r.Overall = telemetry.Round2(math.Max(0, math.Min(maxScoreValue, overall)))
	r.Grade = GradeFor(r.Overall)
	return r
}

// Rank orders results by overall score, highest first, and assigns 1-based
// ranks. Equal scores keep their input order. The input slice is not
// modified.
func Rank(results []Result) []Result {
	out := make([]Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Overall > out[j].Overall })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// GradeFor maps an overall score to its grade.
func GradeFor(overall float64) Grade {
	switch {
	case overall >= 90:
		return Excellent
	case overall >= 80:
		return Good
	case overall >= 70:
		return Average
	case overall >= 60:
		return Caution
	default:
		return Poor
	}
}

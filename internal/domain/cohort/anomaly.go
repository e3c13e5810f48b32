package cohort

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Type names the dominant deviation of a device.
type Type string

// Anomaly types, in classification priority order.
const (
	TypeNormal  Type = "normal"
	TypeSOH     Type = "soh_anomaly"
	TypeHealth  Type = "health_anomaly"
	TypeBalance Type = "balance_anomaly"
	TypeTemp    Type = "temp_anomaly"
)

// Risk is the severity tier derived from the largest z-score.
type Risk string

// Risk tiers.
const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Z-score thresholds.
const (
	TypeThreshold     = 2.5
	CriticalThreshold = 3.0
	HighThreshold     = 2.5
	MediumThreshold   = 2.0
)

// Anomaly is a device that deviates from its cohort.
type Anomaly struct {
	DeviceID        string    `json:"device_id"`
	CarType         string    `json:"car_type"`
	SOH             float64   `json:"soh"`
	Health          float64   `json:"composite_health_index"`
	CellBalance     float64   `json:"cell_balance_index"`
	Temp            float64   `json:"mod_avg_temp"`
	LastUpdated     time.Time `json:"last_updated"`
	SOHZScore       float64   `json:"soh_zscore"`
	HealthZScore    float64   `json:"health_zscore"`
	BalanceZScore   float64   `json:"balance_zscore"`
	TempZScore      float64   `json:"temp_zscore"`
	BaselineSOH     float64   `json:"baseline_soh"`
	BaselineHealth  float64   `json:"baseline_health"`
	BaselineBalance float64   `json:"baseline_balance"`
	BaselineTemp    float64   `json:"baseline_temp"`
	Type            Type      `json:"anomaly_type"`
	MaxZScore       float64   `json:"max_zscore"`
	Risk            Risk      `json:"risk_level"`
	Description     string    `json:"anomaly_description"`
}

// Option tunes anomaly detection.
type Option func(*settings)

type settings struct {
	typeThreshold float64
}

// WithTypeThreshold overrides the z-score a metric must exceed to name the
// anomaly type.
func WithTypeThreshold(z float64) Option {
	return func(s *settings) {
		if z > 0 {
			s.typeThreshold = z
		}
	}
}

// Detect scores every device against its car type baseline and returns the
// devices that are not normal, in input order. Devices whose car type has
// no baseline are skipped.
func Detect(vitals []Vitals, baselines map[string]Baseline, opts ...Option) []Anomaly {
	cfg := settings{typeThreshold: TypeThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := []Anomaly{}
	for _, v := range vitals {
		b, ok := baselines[v.CarType]
		if !ok {
			continue
		}
		zSOH := ZScore(v.SOH, b.SOH)
		zHealth := ZScore(v.Health, b.Health)
		zBalance := ZScore(v.CellBalance, b.Balance)
		zTemp := ZScore(v.Temp, b.Temp)
		maxZ := math.Max(math.Max(zSOH, zHealth), math.Max(zBalance, zTemp))

		typ := TypeNormal
		switch {
		case zSOH > cfg.typeThreshold:
			typ = TypeSOH
		case zHealth > cfg.typeThreshold:
			typ = TypeHealth
		case zBalance > cfg.typeThreshold:
			typ = TypeBalance
		case zTemp > cfg.typeThreshold:
			typ = TypeTemp
		}
		if typ == TypeNormal {
			continue
		}

		out = append(out, Anomaly{
			DeviceID:        v.DeviceID,
			CarType:         v.CarType,
			SOH:             v.SOH,
			Health:          telemetry.Round2(v.Health),
			CellBalance:     telemetry.Round2(v.CellBalance),
			Temp:            v.Temp,
			LastUpdated:     v.LastUpdated,
			SOHZScore:       telemetry.Round2(zSOH),
			HealthZScore:    telemetry.Round2(zHealth),
			BalanceZScore:   telemetry.Round2(zBalance),
			TempZScore:      telemetry.Round2(zTemp),
			BaselineSOH:     telemetry.Round2(b.SOH.Mean),
			BaselineHealth:  telemetry.Round2(b.Health.Mean),
			BaselineBalance: telemetry.Round2(b.Balance.Mean),
			BaselineTemp:    telemetry.Round2(b.Temp.Mean),
			Type:            typ,
			MaxZScore:       telemetry.Round2(maxZ),
			Risk:            RiskFor(maxZ),
			Description:     describe(typ, v, b),
		})
	}
	return out
}

// RiskFor maps a z-score to its risk tier.
func RiskFor(z float64) Risk {
	switch {
	case z > CriticalThreshold:
		return RiskCritical
	case z > HighThreshold:
		return RiskHigh
	case z > MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

func describe(typ Type, v Vitals, b Baseline) string {
	switch typ {
	case TypeSOH:
		if v.SOH < b.SOH.Mean {
			return fmt.Sprintf("SOH is %.1f%% below the car type average (%.1f%%).", b.SOH.Mean-v.SOH, b.SOH.Mean)
		}
		return fmt.Sprintf("SOH is %.1f%% above the car type average (%.1f%%).", v.SOH-b.SOH.Mean, b.SOH.Mean)
	case TypeHealth:
		if v.Health < b.Health.Mean {
			return fmt.Sprintf("Health index is %.1f below the car type average (%.1f).", b.Health.Mean-v.Health, b.Health.Mean)
		}
		return fmt.Sprintf("Health index is %.1f above the car type average (%.1f).", v.Health-b.Health.Mean, b.Health.Mean)
	case TypeBalance:
		if v.CellBalance > b.Balance.Mean {
			return fmt.Sprintf("Cell imbalance is %.1f%% worse than the car type average (%.1f%%).", v.CellBalance-b.Balance.Mean, b.Balance.Mean)
		}
		return fmt.Sprintf("Cell balance is %.1f%% better than the car type average (%.1f%%).", b.Balance.Mean-v.CellBalance, b.Balance.Mean)
	case TypeTemp:
		if v.Temp > b.Temp.Mean {
			return fmt.Sprintf("Battery temperature is %.1f°C above the car type average (%.1f°C).", v.Temp-b.Temp.Mean, b.Temp.Mean)
		}
		return fmt.Sprintf("Battery temperature is %.1f°C below the car type average (%.1f°C).", b.Temp.Mean-v.Temp, b.Temp.Mean)
	default:
		return "Within normal range."
	}
}

// Filter keeps anomalies of type t. An empty t keeps everything.
func Filter(anomalies []Anomaly, t Type) []Anomaly {
	if t == "" {
		return anomalies
	}
	out := []Anomaly{}
	for _, a := range anomalies {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// SortByZScore orders anomalies by max z-score, largest first. Equal scores
// keep their relative order.
func SortByZScore(anomalies []Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].MaxZScore > anomalies[j].MaxZScore
	})
}

// RiskCounts counts anomalies per risk tier.
type RiskCounts struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

func (c *RiskCounts) add(r Risk) {
	c.Total++
	switch r {
	case RiskCritical:
		c.Critical++
	case RiskHigh:
		c.High++
	case RiskMedium:
		c.Medium++
	default:
		c.Low++
	}
}

// Statistics summarizes a list of anomalies.
type Statistics struct {
	TotalAnomalies int                 `json:"total_anomalies"`
	ByType         map[Type]RiskCounts `json:"anomaly_distribution"`
	ByRisk         RiskCounts          `json:"risk_distribution"`
}

// Summarize counts anomalies by type and risk.
func Summarize(anomalies []Anomaly) Statistics {
	st := Statistics{ByType: make(map[Type]RiskCounts)}
	for _, a := range anomalies {
		st.TotalAnomalies++
		c := st.ByType[a.Type]
		c.add(a.Risk)
		st.ByType[a.Type] = c
		st.ByRisk.add(a.Risk)
	}
	return st
}

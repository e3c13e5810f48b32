package simulate

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/logger"
)

// Daily activity windows in hours of the day.
const (
	morningDriveStart = 7
	morningDriveEnd   = 9
	middayIdleStart   = 12
	middayIdleEnd     = 13
	eveningDriveStart = 18
	eveningDriveEnd   = 19
	chargeStart       = 19
	chargeEnd         = 22
)

// Battery and motion model constants.
const (
	cellsInSeries     = 96
	socPerKm          = 0.25 // percent
	slowChargeCurrent = -40.0
	fastChargeCurrent = -150.0
	fastChargeChance  = 0.2
	malformedChance   = 0.001
	odometerNoise     = 0.005
	degradedHeat      = 3.0
	maxSOC            = 95.0
	minSOC            = 8.0
)

// profile is the per-device battery character.
type profile struct {
	id       string
	carType  string
	soh      float64 // starting SOH
	wear     float64 // SOH loss per day
	spread   float64 // cell voltage spread in V
	speed    float64 // mean km/h
	odometer float64
	degraded bool
}

// Generate builds the readings of every device. Devices are generated
// concurrently; each has its own random stream so the output only depends
// on the seed.
func Generate(ctx context.Context, cfg Config) ([]telemetry.Row, error) {
	cfg = cfg.withDefaults()
	logger.Get().Info(ctx, "generating synthetic fleet",
		logger.Int("devices", cfg.Devices),
		logger.Int("days", cfg.Days),
		logger.Duration("interval", cfg.Interval),
	)

	type result struct {
		index int
		rows  []telemetry.Row
		err   error
	}
	results := make(chan result, cfg.Devices)
	indexes := make(chan int)

	workers := min(cfg.Workers, cfg.Devices)
	for w := 0; w < workers; w++ {
		go func() {
			for i := range indexes {
				rows, err := generateDevice(ctx, cfg, i)
				results <- result{index: i, rows: rows, err: err}
			}
		}()
	}
	go func() {
		defer close(indexes)
		for i := 0; i < cfg.Devices; i++ {
			select {
			case <-ctx.Done():
				return
			case indexes <- i:
			}
		}
	}()

	perDevice := make([][]telemetry.Row, cfg.Devices)
	total := 0
	for i := 0; i < cfg.Devices; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during generation: %w", ctx.Err())
		case r := <-results:
			if r.err != nil {
				return nil, fmt.Errorf("failed to generate device %d: %w", r.index, r.err)
			}
			perDevice[r.index] = r.rows
			total += len(r.rows)
		}
	}

	rows := make([]telemetry.Row, 0, total)
	for _, dr := range perDevice {
		rows = append(rows, dr...)
	}
	logger.Get().Info(ctx, "generated fleet readings", logger.Int("rows", len(rows)))
	return rows, nil
}

func seedFor(seed uint64, index int) [32]byte {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[0:], seed)
	binary.LittleEndian.PutUint64(s[8:], uint64(index))
	return s
}

func newProfile(cfg Config, index int, src *rand.ChaCha8, rng *rand.Rand) (profile, error) {
	id, err := uuid.NewRandomFromReader(src)
	if err != nil {
		return profile{}, fmt.Errorf("device id: %w", err)
	}
	p := profile{
		id:       id.String(),
		carType:  cfg.CarTypes[index%len(cfg.CarTypes)],
		soh:      93 + rng.Float64()*6,
		wear:     0.005 + rng.Float64()*0.01,
		spread:   0.01 + rng.Float64()*0.02,
		speed:    30 + rng.Float64()*30,
		odometer: 1000 + rng.Float64()*40000,
	}
	if float64(index) < cfg.DegradedShare*float64(cfg.Devices) {
		p.degraded = true
		p.soh = 68 + rng.Float64()*8
		p.wear = 0.04 + rng.Float64()*0.02
		p.spread = 0.08 + rng.Float64()*0.05
	}
	return p, nil
}

// generateDevice simulates one device day by day: a morning drive, an idle
// midday stop, an evening drive and an evening charge.
func generateDevice(ctx context.Context, cfg Config, index int) ([]telemetry.Row, error) {
	src := rand.NewChaCha8(seedFor(cfg.Seed, index))
	rng := rand.New(src)
	p, err := newProfile(cfg, index, src, rng)
	if err != nil {
		return nil, err
	}

	var (
		rows []telemetry.Row
		soc  = 80 + rng.Float64()*10
		odo  = p.odometer
	)
	emit := func(at time.Time, field string, v float64) {
		var value any = telemetry.Round2(v)
		if rng.Float64() < malformedChance {
			value = "NaN"
		}
		rows = append(rows, telemetry.Row{DeviceID: p.id, CarType: p.carType, Field: field, Time: at, Value: value})
	}
	sample := func(at time.Time, day int, current, temp float64) {
		soh := p.soh - p.wear*float64(day)
		pack := 330 + soc*0.6
		cell := pack / cellsInSeries
		if p.degraded {
			temp += degradedHeat
		}
		emit(at, "soc", soc)
		emit(at, "soh", soh)
		emit(at, "pack_volt", pack)
		emit(at, "pack_current", current)
		emit(at, "odometer", odo)
		emit(at, "mod_avg_temp", temp)
		emit(at, "max_cell_volt", cell+p.spread/2)
		emit(at, "min_cell_volt", cell-p.spread/2)
	}

	step := cfg.Interval.Hours()
	for day := 0; day < cfg.Days; day++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		midnight := cfg.Start.AddDate(0, 0, day)
		ambient := seasonalTemp(midnight) + rng.NormFloat64()

		window := func(from, to int, fn func(at time.Time)) {
			for at := midnight.Add(time.Duration(from) * time.Hour); at.Before(midnight.Add(time.Duration(to) * time.Hour)); at = at.Add(cfg.Interval) {
				fn(at)
			}
		}

		drive := func(at time.Time) {
			km := p.speed * step * (0.6 + rng.Float64()*0.8)
			odo += km
			if rng.Float64() < odometerNoise {
				odo -= 0.5
			}
			soc = math.Max(minSOC, soc-km*socPerKm)
			sample(at, day, 60+rng.Float64()*80, ambient+6)
		}
		window(morningDriveStart, morningDriveEnd, drive)
		window(middayIdleStart, middayIdleEnd, func(at time.Time) {
			sample(at, day, rng.Float64()*2, ambient+2)
		})
		window(eveningDriveStart, eveningDriveEnd, drive)

		current := slowChargeCurrent
		if rng.Float64() < fastChargeChance {
			current = fastChargeCurrent
		}
		window(chargeStart, chargeEnd, func(at time.Time) {
			gain := math.Abs(current) * step * 0.25
			soc = math.Min(maxSOC, soc+gain)
			heat := 4.0
			if current == fastChargeCurrent {
				heat = 12
			}
			sample(at, day, current+rng.NormFloat64(), ambient+heat)
		})
	}
	return rows, nil
}

// seasonalTemp is a northern hemisphere ambient temperature curve peaking in
// late July.
func seasonalTemp(t time.Time) float64 {
	phase := 2 * math.Pi * float64(t.YearDay()-200) / 365
	return 14 + 12*math.Cos(phase)
}

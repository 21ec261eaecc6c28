package grid

import (
	"context"
	"time"

	"github.com/signalsfoundry/gridsim/internal/logging"
)

const (
	// AvailableSolarPotential is the renewable baseline (kW) used when the
	// irradiance lookup answers with a usable estimate.
	AvailableSolarPotential = 500.0
	// DefaultSolarPotential is the baseline (kW) used when the lookup is
	// missing, fails, or answers with an unusable shape.
	DefaultSolarPotential = 300.0

	solarLookupTimeout = 10 * time.Second
)

// SolarEstimate is the subset of a PVGIS PVcalc response the engine cares
// about. Every level is optional.
type SolarEstimate struct {
	Outputs *SolarOutputs `json:"outputs"`
}

type SolarOutputs struct {
	Totals *SolarTotals `json:"totals"`
}

type SolarTotals struct {
	Fixed *FixedMountTotals `json:"fixed"`
}

// FixedMountTotals carries yield figures per kWp of installed capacity.
type FixedMountTotals struct {
	DailyKWh   float64 `json:"E_d"`
	MonthlyKWh float64 `json:"E_m"`
	YearlyKWh  float64 `json:"E_y"`
}

// Usable reports whether the estimate has the outputs section.
func (e *SolarEstimate) Usable() bool {
	return e != nil && e.Outputs != nil
}

// SolarLookup resolves a renewable-potential estimate for a coordinate pair.
type SolarLookup interface {
	LookupSolar(ctx context.Context, lat, lon float64) (*SolarEstimate, error)
}

// SolarLookupFunc adapts a function to SolarLookup.
type SolarLookupFunc func(ctx context.Context, lat, lon float64) (*SolarEstimate, error)

func (f SolarLookupFunc) LookupSolar(ctx context.Context, lat, lon float64) (*SolarEstimate, error) {
	return f(ctx, lat, lon)
}

// resolveSolarPotential performs the one-time lookup. Failures are absorbed
// into the fallback value and only logged.
func resolveSolarPotential(ctx context.Context, lookup SolarLookup, lat, lon, available, fallback float64, log logging.Logger) float64 {
	if lookup == nil {
		log.Info(ctx, "no solar lookup configured; using default potential",
			logging.Float("solar_potential_kw", fallback))
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, solarLookupTimeout)
	defer cancel()

	est, err := lookup.LookupSolar(ctx, lat, lon)
	if err != nil {
		log.Warn(ctx, "solar lookup failed; using default potential",
			logging.Err(err),
			logging.Float("solar_potential_kw", fallback))
		return fallback
	}
	if !est.Usable() {
		log.Warn(ctx, "solar lookup returned no outputs; using default potential",
			logging.Float("solar_potential_kw", fallback))
		return fallback
	}

	log.Info(ctx, "solar potential resolved", logging.Float("solar_potential_kw", available))
	return available
}

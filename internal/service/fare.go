package service

import (
	"math"
	"time"

	"courier/internal/domain"
	"courier/internal/geo"
)

// ClassRate holds the linear pricing for one vehicle class, in currency units.
type ClassRate struct {
	BaseFare float64
	PerKm    float64
	PerMin   float64
}

// DistanceBracket prices hauls of different lengths differently; the first
// bracket whose UpToKm covers the distance applies. A zero UpToKm marks the
// open-ended bracket and must come last.
type DistanceBracket struct {
	UpToKm     float64
	Multiplier float64
}

// ClockWindow is a local-time band [StartHour, EndHour).
type ClockWindow struct {
	StartHour int
	EndHour   int
}

// FareConfig contains all fare engine tunables.
type FareConfig struct {
	ClassRates map[domain.VehicleClass]ClassRate
	Brackets   []DistanceBracket

	PeakWindows       []ClockWindow
	PeakMultiplier    float64
	WeekendMultiplier float64
	WeatherMultiplier float64

	FragileMultiplier  float64
	OverweightKg       float64
	OverweightMult     float64
	BulkyVolumeM3      float64
	BulkyMult          float64
	SpecialHandlingMul float64

	PlatformFeePct float64
	PaymentFeePct  map[domain.PaymentMethod]float64
	ServiceFee     float64

	// Fare bounds are fixed multiples of the class base fare, applied as a
	// clamp on the final total.
	MinFareMultiple float64
	MaxFareMultiple float64

	Currency string
}

// DefaultFareConfig returns the production fare table.
func DefaultFareConfig() FareConfig {
	return FareConfig{
		ClassRates: map[domain.VehicleClass]ClassRate{
			domain.VehicleClassBike:  {BaseFare: 500, PerKm: 100, PerMin: 10},
			domain.VehicleClassCar:   {BaseFare: 800, PerKm: 120, PerMin: 12},
			domain.VehicleClassVan:   {BaseFare: 1500, PerKm: 150, PerMin: 15},
			domain.VehicleClassTruck: {BaseFare: 2500, PerKm: 200, PerMin: 20},
		},
		Brackets: []DistanceBracket{
			{UpToKm: 5, Multiplier: 1.0},
			{UpToKm: 20, Multiplier: 0.95},
			{UpToKm: 0, Multiplier: 0.9},
		},
		PeakWindows:       []ClockWindow{{7, 9}, {17, 20}},
		PeakMultiplier:    1.25,
		WeekendMultiplier: 1.10,
		WeatherMultiplier: 1.20,

		FragileMultiplier:  1.15,
		OverweightKg:       10,
		OverweightMult:     1.20,
		BulkyVolumeM3:      0.125,
		BulkyMult:          1.25,
		SpecialHandlingMul: 1.30,

		PlatformFeePct: 0.10,
		PaymentFeePct: map[domain.PaymentMethod]float64{
			domain.PaymentMethodCash:     0,
			domain.PaymentMethodCard:     0.015,
			domain.PaymentMethodWallet:   0.01,
			domain.PaymentMethodTransfer: 0.005,
		},
		ServiceFee: 50,

		MinFareMultiple: 1.0,
		MaxFareMultiple: 10.0,

		Currency: "NGN",
	}
}

// Situational carries the demand/time flags applied as multipliers.
type Situational struct {
	Peak       bool
	Weekend    bool
	BadWeather bool
}

// FareQuote is the itemized result of a quote. Line items keep full
// precision; rounding happens once, on Total, so the breakdown always sums
// to the pre-rounding total.
type FareQuote struct {
	VehicleClass domain.VehicleClass `json:"vehicle_class"`
	DistanceKm   float64             `json:"distance_km"`
	DurationMin  float64             `json:"duration_min"`

	BaseFare          float64            `json:"base_fare"`
	DistanceFare      float64            `json:"distance_fare"`
	TimeFare          float64            `json:"time_fare"`
	BracketMultiplier float64            `json:"bracket_multiplier"`
	Multipliers       map[string]float64 `json:"multipliers,omitempty"`

	PlatformFee float64 `json:"platform_fee"`
	PaymentFee  float64 `json:"payment_fee"`
	ServiceFee  float64 `json:"service_fee"`

	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

// FareEngine converts distance, duration and delivery attributes into a
// priced quote.
type FareEngine struct {
	cfg FareConfig
	now func() time.Time
}

// NewFareEngine creates a FareEngine with the given config.
func NewFareEngine(cfg FareConfig) *FareEngine {
	return &FareEngine{cfg: cfg, now: time.Now}
}

// Quote prices a delivery from its distance, duration and attributes.
// Deterministic for fixed inputs.
func (e *FareEngine) Quote(distanceKm, durationMin float64, class domain.VehicleClass, pkg domain.Package, method domain.PaymentMethod, sit Situational) (*FareQuote, error) {
	if distanceKm < 0 {
		return nil, domain.NewValidationError("distance_km", "must be non-negative")
	}
	if durationMin < 0 {
		return nil, domain.NewValidationError("duration_min", "must be non-negative")
	}

	rate, ok := e.cfg.ClassRates[class]
	if !ok {
		return nil, domain.NewValidationError("vehicle_class", "unknown vehicle class")
	}

	quote := &FareQuote{
		VehicleClass:      class,
		DistanceKm:        distanceKm,
		DurationMin:       durationMin,
		BaseFare:          rate.BaseFare,
		DistanceFare:      distanceKm * rate.PerKm,
		TimeFare:          durationMin * rate.PerMin,
		BracketMultiplier: e.bracketMultiplier(distanceKm),
		Multipliers:       map[string]float64{},
		ServiceFee:        e.cfg.ServiceFee,
		Currency:          e.cfg.Currency,
	}

	subtotal := (quote.BaseFare + quote.DistanceFare + quote.TimeFare) * quote.BracketMultiplier

	apply := func(name string, mult float64, when bool) {
		if when {
			quote.Multipliers[name] = mult
			subtotal *= mult
		}
	}
	apply("peak", e.cfg.PeakMultiplier, sit.Peak)
	apply("weekend", e.cfg.WeekendMultiplier, sit.Weekend)
	apply("weather", e.cfg.WeatherMultiplier, sit.BadWeather)
	apply("fragile", e.cfg.FragileMultiplier, pkg.Fragile)
	apply("overweight", e.cfg.OverweightMult, pkg.WeightKg > e.cfg.OverweightKg)
	apply("bulky", e.cfg.BulkyMult, pkg.VolumeM3() > e.cfg.BulkyVolumeM3)
	apply("special_handling", e.cfg.SpecialHandlingMul, pkg.SpecialHandling)

	quote.PlatformFee = subtotal * e.cfg.PlatformFeePct
	quote.PaymentFee = subtotal * e.cfg.PaymentFeePct[method]

	total := subtotal + quote.PlatformFee + quote.PaymentFee + quote.ServiceFee

	// Single rounding point, after the clamp.
	total = math.Min(math.Max(total, rate.BaseFare*e.cfg.MinFareMultiple), rate.BaseFare*e.cfg.MaxFareMultiple)
	quote.Total = math.Round(total)

	return quote, nil
}

// Estimate derives distance and duration from coordinates and the current
// wall clock for the situational flags, then quotes.
func (e *FareEngine) Estimate(pickup, dropoff geo.Point, class domain.VehicleClass, pkg domain.Package, method domain.PaymentMethod) (*FareQuote, error) {
	distance, err := geo.DistanceKm(pickup, dropoff)
	if err != nil {
		return nil, err
	}
	duration := geo.ETAMinutes(distance, class)

	now := e.now()
	sit := Situational{
		Peak:    e.inPeakWindow(now),
		Weekend: now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,
	}

	return e.Quote(distance, duration, class, pkg, method, sit)
}

func (e *FareEngine) bracketMultiplier(distanceKm float64) float64 {
	for _, b := range e.cfg.Brackets {
		if b.UpToKm <= 0 || distanceKm <= b.UpToKm {
			return b.Multiplier
		}
	}
	return 1.0
}

func (e *FareEngine) inPeakWindow(t time.Time) bool {
	hour := t.Hour()
	for _, w := range e.cfg.PeakWindows {
		if hour >= w.StartHour && hour < w.EndHour {
			return true
		}
	}
	return false
}

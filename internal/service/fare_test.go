package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"courier/internal/domain"
	"courier/internal/geo"
)

func TestQuote_ComputesLineItems(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())

	// 10 km, 30 min, car, cash, no situational flags.
	quote, err := engine.Quote(10, 30, domain.VehicleClassCar, domain.Package{}, domain.PaymentMethodCash, Situational{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if quote.BaseFare != 800 {
		t.Errorf("expected base fare 800, got %f", quote.BaseFare)
	}
	if quote.DistanceFare != 1200 {
		t.Errorf("expected distance fare 1200, got %f", quote.DistanceFare)
	}
	if quote.TimeFare != 360 {
		t.Errorf("expected time fare 360, got %f", quote.TimeFare)
	}
	if quote.BracketMultiplier != 0.95 {
		t.Errorf("expected bracket 0.95 for 10 km, got %f", quote.BracketMultiplier)
	}

	subtotal := (800.0 + 1200 + 360) * 0.95
	expected := math.Round(subtotal + subtotal*0.10 + 50)
	if quote.Total != expected {
		t.Errorf("expected total %f, got %f", expected, quote.Total)
	}
	if quote.Currency != "NGN" {
		t.Errorf("expected NGN, got %s", quote.Currency)
	}
}

func TestQuote_TotalRoundedOnceLineItemsExact(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())

	// Fractional distance so intermediate values carry fractions.
	quote, err := engine.Quote(3.33, 17.7, domain.VehicleClassBike, domain.Package{}, domain.PaymentMethodCard, Situational{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Line items stay at full precision.
	if quote.DistanceFare != 3.33*100 {
		t.Errorf("distance fare was rounded: %f", quote.DistanceFare)
	}
	if quote.TimeFare != 17.7*10 {
		t.Errorf("time fare was rounded: %f", quote.TimeFare)
	}

	// The total equals the breakdown summed once and rounded once.
	subtotal := (quote.BaseFare + quote.DistanceFare + quote.TimeFare) * quote.BracketMultiplier
	expected := math.Round(subtotal + quote.PlatformFee + quote.PaymentFee + quote.ServiceFee)
	if quote.Total != expected {
		t.Errorf("expected total %f, got %f", expected, quote.Total)
	}
	if quote.Total != math.Trunc(quote.Total) {
		t.Errorf("total carries fractions: %f", quote.Total)
	}
}

func TestQuote_RecordsAppliedMultipliers(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())

	pkg := domain.Package{
		WeightKg:        12, // over the 10 kg threshold
		LengthCm:        100,
		WidthCm:         100,
		HeightCm:        100, // 1 m3, over the bulky threshold
		Fragile:         true,
		SpecialHandling: true,
	}
	quote, err := engine.Quote(2, 10, domain.VehicleClassVan, pkg, domain.PaymentMethodCash, Situational{
		Peak:       true,
		Weekend:    true,
		BadWeather: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"peak", "weekend", "weather", "fragile", "overweight", "bulky", "special_handling"} {
		if _, ok := quote.Multipliers[name]; !ok {
			t.Errorf("expected multiplier %q to be recorded", name)
		}
	}
}

func TestQuote_OmitsInactiveMultipliers(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())

	quote, err := engine.Quote(2, 10, domain.VehicleClassVan, domain.Package{}, domain.PaymentMethodCash, Situational{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quote.Multipliers) != 0 {
		t.Errorf("expected no multipliers, got %v", quote.Multipliers)
	}
}

func TestQuote_PaymentMethodFees(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())

	cash, err := engine.Quote(5, 20, domain.VehicleClassCar, domain.Package{}, domain.PaymentMethodCash, Situational{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	card, err := engine.Quote(5, 20, domain.VehicleClassCar, domain.Package{}, domain.PaymentMethodCard, Situational{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cash.PaymentFee != 0 {
		t.Errorf("expected no fee for cash, got %f", cash.PaymentFee)
	}
	if card.PaymentFee <= 0 {
		t.Errorf("expected card fee, got %f", card.PaymentFee)
	}
	if card.Total <= cash.Total {
		t.Errorf("expected card total above cash total: %f vs %f", card.Total, cash.Total)
	}
}

func TestQuote_ClampCeiling(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())

	// A 200 km bike haul blows far past ten times the base fare.
	quote, err := engine.Quote(200, 400, domain.VehicleClassBike, domain.Package{}, domain.PaymentMethodCash, Situational{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Total != 5000 {
		t.Errorf("expected total clamped to 5000, got %f", quote.Total)
	}
}

func TestQuote_ClampFloor(t *testing.T) {
	t.Parallel()

	cfg := DefaultFareConfig()
	cfg.ServiceFee = 0
	cfg.PlatformFeePct = 0
	cfg.Brackets = []DistanceBracket{{UpToKm: 0, Multiplier: 0.5}}
	engine := NewFareEngine(cfg)

	quote, err := engine.Quote(0, 0, domain.VehicleClassBike, domain.Package{}, domain.PaymentMethodCash, Situational{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Total != 500 {
		t.Errorf("expected floor at base fare 500, got %f", quote.Total)
	}
}

func TestQuote_RejectsBadInputs(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())

	var validation *domain.ValidationError

	_, err := engine.Quote(-1, 10, domain.VehicleClassCar, domain.Package{}, domain.PaymentMethodCash, Situational{})
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error for negative distance, got %v", err)
	}

	_, err = engine.Quote(1, -10, domain.VehicleClassCar, domain.Package{}, domain.PaymentMethodCash, Situational{})
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error for negative duration, got %v", err)
	}

	_, err = engine.Quote(1, 10, domain.VehicleClass("SCOOTER"), domain.Package{}, domain.PaymentMethodCash, Situational{})
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error for unknown class, got %v", err)
	}
}

func TestQuote_DeterministicForFixedInputs(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())
	pkg := domain.Package{WeightKg: 4, Fragile: true}

	first, err := engine.Quote(7.5, 25, domain.VehicleClassCar, pkg, domain.PaymentMethodWallet, Situational{Peak: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Quote(7.5, 25, domain.VehicleClassCar, pkg, domain.PaymentMethodWallet, Situational{Peak: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Total != second.Total {
		t.Errorf("quotes differ for identical inputs: %f vs %f", first.Total, second.Total)
	}
}

func TestEstimate_AppliesPeakFromClock(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())
	// Monday 08:00, inside the morning peak window.
	engine.now = func() time.Time {
		return time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	}

	quote, err := engine.Estimate(
		geo.Point{Lat: 6.5244, Lng: 3.3792},
		geo.Point{Lat: 6.5344, Lng: 3.3892},
		domain.VehicleClassBike, domain.Package{}, domain.PaymentMethodCash,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Multipliers["peak"] != 1.25 {
		t.Errorf("expected peak multiplier at 08:00 Monday, got %v", quote.Multipliers)
	}
	if _, ok := quote.Multipliers["weekend"]; ok {
		t.Error("weekend multiplier applied on a Monday")
	}
}

func TestEstimate_AppliesWeekendFromClock(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())
	// Saturday noon, outside both peak windows.
	engine.now = func() time.Time {
		return time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	}

	quote, err := engine.Estimate(
		geo.Point{Lat: 6.5244, Lng: 3.3792},
		geo.Point{Lat: 6.5344, Lng: 3.3892},
		domain.VehicleClassBike, domain.Package{}, domain.PaymentMethodCash,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Multipliers["weekend"] != 1.10 {
		t.Errorf("expected weekend multiplier on Saturday, got %v", quote.Multipliers)
	}
	if _, ok := quote.Multipliers["peak"]; ok {
		t.Error("peak multiplier applied at noon")
	}
}

func TestEstimate_DerivesDistanceAndDuration(t *testing.T) {
	t.Parallel()

	engine := NewFareEngine(DefaultFareConfig())
	engine.now = func() time.Time {
		return time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)
	}

	pickup := geo.Point{Lat: 6.5244, Lng: 3.3792}
	dropoff := geo.Point{Lat: 6.5344, Lng: 3.3892}

	quote, err := engine.Estimate(pickup, dropoff, domain.VehicleClassBike, domain.Package{}, domain.PaymentMethodCash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	distance, err := geo.DistanceKm(pickup, dropoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.DistanceKm != distance {
		t.Errorf("expected distance %f, got %f", distance, quote.DistanceKm)
	}
	if quote.DurationMin != geo.ETAMinutes(distance, domain.VehicleClassBike) {
		t.Errorf("expected ETA-derived duration, got %f", quote.DurationMin)
	}
}

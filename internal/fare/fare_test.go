package fare

import (
	"testing"

	"carpool-backend/internal/models"
)

// Сквозной сценарий: 50 км на седане, 2 места
func TestCalculateSedan50Km(t *testing.T) {
	b, err := Calculate(50, models.VehicleTypeSedan, 2)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"fuel_cost", b.FuelCost, 400},
		{"maintenance_cost", b.MaintenanceCost, 100},
		{"trip_cost", b.TripCost, 500},
		{"driver_profit", b.DriverProfit, 175},
		{"total_fare", b.TotalFare, 675},
		{"fare_per_seat", b.FarePerSeat, 338},
		{"passenger_share", b.PassengerShare, 250},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %g, ожидалось %g", tc.name, tc.got, tc.want)
		}
	}
}

func TestCalculateValidation(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		vehicle  models.VehicleType
		seats    int
	}{
		{"нулевое расстояние", 0, models.VehicleTypeSedan, 2},
		{"отрицательное расстояние", -5, models.VehicleTypeSedan, 2},
		{"ноль мест", 10, models.VehicleTypeSedan, 0},
		{"неизвестный тип", 10, models.VehicleType("tractor"), 2},
	}
	for _, tc := range cases {
		if _, err := Calculate(tc.distance, tc.vehicle, tc.seats); err == nil {
			t.Errorf("%s: ожидалась ошибка валидации", tc.name)
		}
	}
}

// Свойство округления вверх: farePerSeat * seats >= totalFare
func TestFarePerSeatCoversTotal(t *testing.T) {
	vehicles := []models.VehicleType{
		models.VehicleTypeSedan,
		models.VehicleTypeSUV,
		models.VehicleTypeHatchback,
		models.VehicleTypeVan,
		models.VehicleTypeMotorcycle,
	}
	distances := []float64{0.5, 1, 13.7, 50, 333.3, 1200}
	seatCounts := []int{1, 2, 3, 4, 7}

	for _, v := range vehicles {
		for _, d := range distances {
			for _, s := range seatCounts {
				b, err := Calculate(d, v, s)
				if err != nil {
					t.Fatalf("Calculate(%g, %s, %d): %v", d, v, s, err)
				}
				if b.FarePerSeat*float64(s) < b.TotalFare {
					t.Errorf("Calculate(%g, %s, %d): perSeat*seats=%g < total=%g",
						d, v, s, b.FarePerSeat*float64(s), b.TotalFare)
				}
				if b.PassengerShare*float64(s) < b.TripCost {
					t.Errorf("Calculate(%g, %s, %d): share*seats=%g < tripCost=%g",
						d, v, s, b.PassengerShare*float64(s), b.TripCost)
				}
			}
		}
	}
}

func TestSuggestedRange(t *testing.T) {
	r, err := SuggestedRange(50, models.VehicleTypeSedan, 2)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if r.Suggested != 338 {
		t.Fatalf("suggested = %g, ожидалось 338", r.Suggested)
	}
	if r.Min != 288 {
		t.Errorf("min = %g, ожидалось 288", r.Min)
	}
	if r.Max != 423 {
		t.Errorf("max = %g, ожидалось 423", r.Max)
	}
}

// Инвариант: min <= suggested <= max для любых корректных входов
func TestSuggestedRangeOrdering(t *testing.T) {
	for _, d := range []float64{0.3, 2, 17, 120, 999} {
		for s := 1; s <= 6; s++ {
			r, err := SuggestedRange(d, models.VehicleTypeVan, s)
			if err != nil {
				t.Fatalf("SuggestedRange(%g, van, %d): %v", d, s, err)
			}
			if r.Min > r.Suggested || r.Suggested > r.Max {
				t.Errorf("SuggestedRange(%g, van, %d): нарушен порядок %g <= %g <= %g",
					d, s, r.Min, r.Suggested, r.Max)
			}
		}
	}
}

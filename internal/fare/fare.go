package fare

import (
	"fmt"
	"math"

	"carpool-backend/internal/models"
)

// Тарифные константы (рупий за километр / за поездку).
// Промежуточные значения не округляются, денежные результаты
// округляются вверх, чтобы не занижать стоимость.
const (
	maintenanceRatePerKm = 2.0
	baseProfit           = 100.0
	profitMargin         = 0.15
)

// fuelRates - расход топлива в деньгах на километр по типам автомобилей
var fuelRates = map[models.VehicleType]float64{
	models.VehicleTypeSedan:      8,
	models.VehicleTypeSUV:        12,
	models.VehicleTypeHatchback:  7,
	models.VehicleTypeVan:        14,
	models.VehicleTypeMotorcycle: 3,
}

// Breakdown - детализация стоимости поездки
type Breakdown struct {
	DistanceKm      float64 `json:"distance_km"`
	FuelCost        float64 `json:"fuel_cost"`
	MaintenanceCost float64 `json:"maintenance_cost"`
	TripCost        float64 `json:"trip_cost"`
	DriverProfit    float64 `json:"driver_profit"`
	TotalFare       float64 `json:"total_fare"`
	FarePerSeat     float64 `json:"fare_per_seat"`
	PassengerShare  float64 `json:"passenger_share"`
}

// Range - рекомендуемый диапазон цены за место
type Range struct {
	Min       float64   `json:"min"`
	Suggested float64   `json:"suggested"`
	Max       float64   `json:"max"`
	Breakdown Breakdown `json:"breakdown"`
}

// Calculate вычисляет детализацию стоимости поездки.
// Некорректные входные данные возвращают ошибку валидации с первым
// нарушенным ограничением.
func Calculate(distanceKm float64, vehicleType models.VehicleType, seats int) (Breakdown, error) {
	if distanceKm <= 0 {
		return Breakdown{}, fmt.Errorf("расстояние должно быть больше нуля, получено %g", distanceKm)
	}
	if seats < 1 {
		return Breakdown{}, fmt.Errorf("количество мест должно быть не меньше одного, получено %d", seats)
	}
	rate, ok := fuelRates[vehicleType]
	if !ok {
		return Breakdown{}, fmt.Errorf("неизвестный тип автомобиля: %q", vehicleType)
	}

	fuelCost := distanceKm * rate
	maintenanceCost := distanceKm * maintenanceRatePerKm
	tripCost := fuelCost + maintenanceCost
	driverProfit := baseProfit + profitMargin*tripCost
	totalFare := tripCost + driverProfit

	return Breakdown{
		DistanceKm:      distanceKm,
		FuelCost:        math.Ceil(fuelCost),
		MaintenanceCost: math.Ceil(maintenanceCost),
		TripCost:        math.Ceil(tripCost),
		DriverProfit:    math.Ceil(driverProfit),
		TotalFare:       math.Ceil(totalFare),
		FarePerSeat:     math.Ceil(totalFare / float64(seats)),
		PassengerShare:  math.Ceil(tripCost / float64(seats)),
	}, nil
}

// SuggestedRange возвращает переговорный диапазон цены за место:
// от 85% до 125% от расчетной цены, округленных вверх.
func SuggestedRange(distanceKm float64, vehicleType models.VehicleType, seats int) (Range, error) {
	b, err := Calculate(distanceKm, vehicleType, seats)
	if err != nil {
		return Range{}, err
	}

	return Range{
		Min:       math.Ceil(0.85 * b.FarePerSeat),
		Suggested: b.FarePerSeat,
		Max:       math.Ceil(1.25 * b.FarePerSeat),
		Breakdown: b,
	}, nil
}

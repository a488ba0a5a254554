package models

// VehicleType определяет тип автомобиля, используется как ключ в тарифных таблицах
type VehicleType string

const (
	VehicleTypeSedan      VehicleType = "sedan"      // Седан
	VehicleTypeSUV        VehicleType = "suv"        // Внедорожник
	VehicleTypeHatchback  VehicleType = "hatchback"  // Хэтчбек
	VehicleTypeVan        VehicleType = "van"        // Минивэн
	VehicleTypeMotorcycle VehicleType = "motorcycle" // Мотоцикл
)

// ValidVehicleType проверяет, что тип автомобиля известен тарифной таблице
func ValidVehicleType(t VehicleType) bool {
	switch t {
	case VehicleTypeSedan, VehicleTypeSUV, VehicleTypeHatchback, VehicleTypeVan, VehicleTypeMotorcycle:
		return true
	}
	return false
}

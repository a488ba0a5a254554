package filter

import (
	"testing"
	"time"

	"carpool-backend/internal/models"
)

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		name   string
		source string
		query  string
		want   bool
	}{
		{"пустой запрос совпадает со всем", "Lahore", "", true},
		{"совпадение без учета регистра", "Karachi Cantt", "karachi", true},
		{"нет совпадения", "Lahore", "xyz", false},
		{"совпадает любое слово запроса", "Islamabad G-9", "rawalpindi islamabad", true},
		{"короткие слова запроса не учитываются", "Multan", "to in at", true},
		{"урду в адресе не мешает поиску", "Karachi کراچی Saddar", "saddar", true},
		{"пунктуация в адресе игнорируется", "F-8 Markaz, Islamabad", "markaz", true},
		{"подстрочное совпадение внутри слова", "Rawalpindi", "pindi", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FuzzyMatch(tt.source, tt.query); got != tt.want {
				t.Errorf("FuzzyMatch(%q, %q) = %v, ожидалось %v", tt.source, tt.query, got, tt.want)
			}
		})
	}
}

func makeRides() []models.Ride {
	day := func(d int, hour int) time.Time {
		return time.Date(2025, time.March, d, hour, 0, 0, 0, time.UTC)
	}
	return []models.Ride{
		{ID: 1, FromAddress: "Karachi Cantt", ToAddress: "Hyderabad", Status: models.RideStatusScheduled, FarePerSeat: 500, DepartureDate: day(10, 9)},
		{ID: 2, FromAddress: "Lahore", ToAddress: "Islamabad", Status: models.RideStatusScheduled, FarePerSeat: 1200, DepartureDate: day(10, 7)},
		{ID: 3, FromAddress: "Karachi Saddar", ToAddress: "Sukkur", Status: models.RideStatusCompleted, FarePerSeat: 900, DepartureDate: day(11, 8)},
		{ID: 4, FromAddress: "Multan", ToAddress: "Lahore", Status: models.RideStatusCancelled, FarePerSeat: 500, DepartureDate: day(10, 12)},
	}
}

func ids(rides []models.Ride) []uint {
	out := make([]uint, len(rides))
	for i, r := range rides {
		out[i] = r.ID
	}
	return out
}

func assertIDs(t *testing.T, got []models.Ride, want ...uint) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("получены поездки %v, ожидались %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("получены поездки %v, ожидались %v", gotIDs, want)
		}
	}
}

func TestApplyStatusFilter(t *testing.T) {
	got := Apply(makeRides(), Params{Statuses: []models.RideStatus{models.RideStatusScheduled}})
	assertIDs(t, got, 2, 1) // Отсортированы по времени отправления
}

func TestApplyDateFilter(t *testing.T) {
	date := time.Date(2025, time.March, 11, 15, 30, 0, 0, time.UTC)
	got := Apply(makeRides(), Params{Date: &date})
	assertIDs(t, got, 3)
}

func TestApplyDateBoundaries(t *testing.T) {
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	rides := []models.Ride{
		{ID: 1, DepartureDate: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)},  // Начало дня включается
		{ID: 2, DepartureDate: time.Date(2025, time.March, 10, 23, 59, 59, 0, time.UTC)},
		{ID: 3, DepartureDate: time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC)}, // Полночь следующего дня - уже нет
		{ID: 4, DepartureDate: time.Date(2025, time.March, 9, 23, 59, 59, 0, time.UTC)},
	}
	got := Apply(rides, Params{Date: &date})
	assertIDs(t, got, 1, 2)
}

func TestApplyRouteFilter(t *testing.T) {
	got := Apply(makeRides(), Params{From: "karachi"})
	assertIDs(t, got, 1, 3)

	got = Apply(makeRides(), Params{From: "karachi", To: "sukkur"})
	assertIDs(t, got, 3)
}

func TestApplySortByFare(t *testing.T) {
	got := Apply(makeRides(), Params{Sort: SortFareAsc})
	assertIDs(t, got, 1, 4, 3, 2)

	got = Apply(makeRides(), Params{Sort: SortFareDesc})
	assertIDs(t, got, 2, 3, 1, 4)
}

func TestSortStability(t *testing.T) {
	// Поездки 1 и 4 стоят одинаково: при сортировке по цене их
	// взаимный порядок из исходного среза сохраняется
	rides := makeRides()
	SortRides(rides, SortFareAsc)
	if rides[0].ID != 1 || rides[1].ID != 4 {
		t.Errorf("устойчивость сортировки нарушена: %v", ids(rides))
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	rides := makeRides()
	Apply(rides, Params{Sort: SortFareDesc})
	if rides[0].ID != 1 {
		t.Errorf("исходный срез изменен: %v", ids(rides))
	}
}

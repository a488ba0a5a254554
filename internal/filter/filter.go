package filter

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"carpool-backend/internal/models"
)

// SortKey - ключ сортировки списка поездок
type SortKey string

const (
	SortDepartureAsc SortKey = "departure" // По времени отправления (по умолчанию)
	SortFareAsc      SortKey = "fare_asc"  // Сначала дешевые
	SortFareDesc     SortKey = "fare_desc" // Сначала дорогие
)

// Params - параметры клиентской фильтрации поверх загруженного набора.
// Применение чистое: один и тот же вход всегда дает один и тот же выход.
type Params struct {
	Statuses []models.RideStatus
	From     string     // Нечеткий поиск по адресу отправления
	To       string     // Нечеткий поиск по адресу назначения
	Date     *time.Time // Календарный день отправления
	Sort     SortKey
}

// Apply последовательно применяет фильтры по статусу, дате и тексту,
// затем сортирует. Исходный срез не изменяется.
func Apply(rides []models.Ride, p Params) []models.Ride {
	out := make([]models.Ride, 0, len(rides))
	for _, r := range rides {
		if !statusMatch(r.Status, p.Statuses) {
			continue
		}
		if p.Date != nil && !sameCalendarDay(r.DepartureDate, *p.Date) {
			continue
		}
		if !FuzzyMatch(r.FromAddress, p.From) {
			continue
		}
		if !FuzzyMatch(r.ToAddress, p.To) {
			continue
		}
		out = append(out, r)
	}

	SortRides(out, p.Sort)
	return out
}

// SortRides сортирует срез на месте устойчиво: равные элементы
// сохраняют исходный порядок
func SortRides(rides []models.Ride, key SortKey) {
	switch key {
	case SortFareAsc:
		sort.SliceStable(rides, func(i, j int) bool {
			return rides[i].FarePerSeat < rides[j].FarePerSeat
		})
	case SortFareDesc:
		sort.SliceStable(rides, func(i, j int) bool {
			return rides[i].FarePerSeat > rides[j].FarePerSeat
		})
	default:
		sort.SliceStable(rides, func(i, j int) bool {
			return rides[i].DepartureDate.Before(rides[j].DepartureDate)
		})
	}
}

func statusMatch(status models.RideStatus, wanted []models.RideStatus) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, s := range wanted {
		if s == status {
			return true
		}
	}
	return false
}

// sameCalendarDay проверяет попадание метки времени в календарный день
// даты запроса, в ее часовом поясе
func sameCalendarDay(ts, day time.Time) bool {
	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)
	local := ts.In(day.Location())
	return !local.Before(startOfDay) && local.Before(endOfDay)
}

// FuzzyMatch - нечеткое сопоставление адреса с запросом: обе строки
// нормализуются, запрос разбивается на слова длиннее двух символов,
// совпадение - любое слово входит в адрес как подстрока. Нарочито
// мягкое правило: короткие общие подстроки дают лишние совпадения,
// это принятый компромисс. Пустой запрос совпадает со всем.
func FuzzyMatch(source, query string) bool {
	words := queryWords(query)
	if len(words) == 0 {
		return true
	}

	normalized := normalize(source)
	for _, w := range words {
		if strings.Contains(normalized, w) {
			return true
		}
	}
	return false
}

// queryWords возвращает нормализованные слова запроса длиннее двух символов
func queryWords(query string) []string {
	fields := strings.Fields(normalize(query))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			words = append(words, f)
		}
	}
	return words
}

// normalize приводит текст к нижнему регистру и выбрасывает арабскую
// графику (урду в адресах) и все, кроме букв, цифр и пробелов
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r == ' ':
			b.WriteRune(r)
		case unicode.Is(unicode.Arabic, r):
			// Дублирующая запись адреса на урду не участвует в поиске
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

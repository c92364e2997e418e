package models

import "strings"

// CityKey folds a city name for case-insensitive matching. Events and records
// store it in their city_key column; policy.SameCity compares the same form.
func CityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

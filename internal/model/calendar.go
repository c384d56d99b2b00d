package model

import "time"

// MondayIndex converts Go's Sunday-based weekday to the Monday=0 ..
// Sunday=6 numbering used by the date dimension.
func MondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// Quarter returns the calendar quarter (1-4) for a month.
func Quarter(m time.Month) int {
	return (int(m)-1)/3 + 1
}

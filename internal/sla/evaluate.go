package sla

import (
	"math"
	"time"

	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/internal/records"
)

// Evaluate derives the elapsed percentage and alert level of a deadline.
// It is a pure function of its inputs.
func Evaluate(abertura, limite time.Time, status records.Status, today time.Time) (float64, Level) {
	if status == records.StatusConcluido {
		return 0, LevelConcluido
	}
	if abertura.IsZero() || limite.IsZero() {
		return 0, LevelSemPrazo
	}
	pct := Percent(abertura, limite, today)
	return pct, levelFor(pct)
}

// Percent is elapsed calendar days over total calendar days, clamped to [0,100].
// A zero-length deadline counts as fully elapsed.
func Percent(abertura, limite, today time.Time) float64 {
	total := calendar.DaysBetween(abertura, limite)
	if total <= 0 {
		return 100
	}
	elapsed := calendar.DaysBetween(abertura, today)
	pct := float64(elapsed) * 100 / float64(total)
	pct = math.Max(0, math.Min(100, pct))
	return math.Round(pct*100) / 100
}

func levelFor(pct float64) Level {
	switch {
	case pct >= thresholdVermelho:
		return LevelVermelho
	case pct >= thresholdLaranja:
		return LevelLaranja
	case pct >= thresholdAmarelo:
		return LevelAmarelo
	default:
		return LevelVerde
	}
}

// daysOverdue is max(0, today - limite) in calendar days.
func daysOverdue(limite, today time.Time) int {
	if limite.IsZero() {
		return 0
	}
	if n := calendar.DaysBetween(limite, today); n > 0 {
		return n
	}
	return 0
}

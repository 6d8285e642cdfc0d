package calendar

import "time"

type monthDay struct {
	month time.Month
	day   int
}

// National fixed-date holidays (Lei 662/1949 and later amendments).
var fixedHolidays = []monthDay{
	{time.January, 1},   // Confraternização Universal
	{time.April, 21},    // Tiradentes
	{time.May, 1},       // Dia do Trabalho
	{time.September, 7}, // Independência
	{time.October, 12},  // Nossa Senhora Aparecida
	{time.November, 2},  // Finados
	{time.November, 15}, // Proclamação da República
	{time.November, 20}, // Consciência Negra
	{time.December, 25}, // Natal
}

func isNationalHoliday(d time.Time) bool {
	for _, h := range fixedHolidays {
		if d.Month() == h.month && d.Day() == h.day {
			return true
		}
	}
	return d.Equal(GoodFriday(d.Year()))
}

// NationalHolidays lists the national holidays of a year in calendar order.
func NationalHolidays(year int) []time.Time {
	out := make([]time.Time, 0, len(fixedHolidays)+1)
	gf := GoodFriday(year)
	added := false
	for _, h := range fixedHolidays {
		d := Date(year, h.month, h.day)
		if !added && gf.Before(d) {
			out = append(out, gf)
			added = true
		}
		out = append(out, d)
	}
	if !added {
		out = append(out, gf)
	}
	return out
}

// Easter computes Easter Sunday (anonymous Gregorian algorithm).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return Date(year, time.Month(month), day)
}

func GoodFriday(year int) time.Time {
	return Easter(year).AddDate(0, 0, -2)
}

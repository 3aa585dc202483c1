package calendar

import (
	"strconv"
	"strings"
	"time"
)

// Date is a day in the revised Bangla calendar used in Bangladesh, where 1
// Boishakh falls on 14 April, the first six months have 31 days and Falgun
// gains a 30th day in Gregorian leap years.
type Date struct {
	Year    int
	Month   int // 1 is Boishakh
	Day     int
	Weekday time.Weekday
}

// Season is one of the six two-month seasons (ritu).
type Season int

const (
	Grishmo Season = iota
	Borsha
	Shorot
	Hemonto
	Sheet
	Boshonto
)

var (
	monthNames = [12]string{"বৈশাখ", "জ্যৈষ্ঠ", "আষাঢ়", "শ্রাবণ", "ভাদ্র", "আশ্বিন", "কার্তিক", "অগ্রহায়ণ", "পৌষ", "মাঘ", "ফাল্গুন", "চৈত্র"}
	monthLatin = [12]string{"Boishakh", "Joishtho", "Asharh", "Srabon", "Bhadro", "Ashwin", "Kartik", "Agrahayan", "Poush", "Magh", "Falgun", "Chaitra"}

	seasonNames = [6]string{"গ্রীষ্ম", "বর্ষা", "শরৎ", "হেমন্ত", "শীত", "বসন্ত"}
	seasonLatin = [6]string{"Grishmo (summer)", "Borsha (monsoon)", "Shorot (autumn)", "Hemonto (late autumn)", "Sheet (winter)", "Boshonto (spring)"}

	weekdayNames = [7]string{"রবিবার", "সোমবার", "মঙ্গলবার", "বুধবার", "বৃহস্পতিবার", "শুক্রবার", "শনিবার"}

	digits = strings.NewReplacer("0", "০", "1", "১", "2", "২", "3", "৩", "4", "৪", "5", "৫", "6", "৬", "7", "৭", "8", "৮", "9", "৯")
)

// FromTime converts the civil date of t, in t's location, to Bangabda.
func FromTime(t time.Time) Date {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(t.Year(), time.April, 14, 0, 0, 0, 0, time.UTC)
	if day.Before(start) {
		start = start.AddDate(-1, 0, 0)
	}

	offset := int(day.Sub(start).Hours() / 24)
	month := 0
	for _, n := range monthLengths(start.Year() + 1) {
		if offset < n {
			break
		}
		offset -= n
		month++
	}
	return Date{
		Year:    start.Year() - 593,
		Month:   month + 1,
		Day:     offset + 1,
		Weekday: t.Weekday(),
	}
}

// monthLengths for the Bangla year whose Falgun falls in gregorianYear.
func monthLengths(gregorianYear int) [12]int {
	falgun := 29
	if isLeap(gregorianYear) {
		falgun = 30
	}
	return [12]int{31, 31, 31, 31, 31, 31, 30, 30, 30, 30, falgun, 30}
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// MonthName is the month in Bengali script.
func (d Date) MonthName() string { return monthNames[d.Month-1] }

// MonthLatin is the romanized month name.
func (d Date) MonthLatin() string { return monthLatin[d.Month-1] }

// Season returns the ritu the month belongs to.
func (d Date) Season() Season { return Season((d.Month - 1) / 2) }

// WeekdayName is the weekday in Bengali script.
func (d Date) WeekdayName() string { return weekdayNames[d.Weekday] }

// DayOrdinal writes the day in Bengali digits with its ordinal suffix, e.g. ২রা.
func (d Date) DayOrdinal() string {
	var suffix string
	switch {
	case d.Day == 1:
		suffix = "লা"
	case d.Day == 2 || d.Day == 3:
		suffix = "রা"
	case d.Day == 4:
		suffix = "ঠা"
	case d.Day <= 18:
		suffix = "ই"
	default:
		suffix = "শে"
	}
	return Digits(d.Day) + suffix
}

// Name is the season in Bengali script.
func (s Season) Name() string { return seasonNames[s] }

// Latin is the romanized season name with its English gloss.
func (s Season) Latin() string { return seasonLatin[s] }

// Digits writes n with Bengali numerals.
func Digits(n int) string { return digits.Replace(strconv.Itoa(n)) }

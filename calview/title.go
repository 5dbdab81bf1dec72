package calview

import (
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/xstejsk/bp-backup/booking"
)

var locales = language.NewMatcher([]language.Tag{language.English, language.Czech})

// matchLocale maps an Accept-Language style string to English or Czech.
func matchLocale(s string) language.Tag {
	if s == "" {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(s)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, i, _ := locales.Match(tags...)
	if i == 1 {
		return language.Czech
	}
	return language.English
}

func isCzech(tag language.Tag) bool { return tag == language.Czech }

func weekStart(tag language.Tag) time.Weekday {
	if isCzech(tag) {
		return time.Monday
	}
	return time.Sunday
}

var czechMonths = [...]string{"leden", "únor", "březen", "duben", "květen", "červen",
	"červenec", "srpen", "září", "říjen", "listopad", "prosinec"}

// genitive, as in "18. října"
var czechMonthsOf = [...]string{"ledna", "února", "března", "dubna", "května", "června",
	"července", "srpna", "září", "října", "listopadu", "prosince"}

func formatTitle(tag language.Tag, g Granularity, d booking.Date, r booking.DateRange) string {
	if isCzech(tag) {
		return czechTitle(g, d, r)
	}
	return englishTitle(g, d, r)
}

// englishTitle: "October 18, 2026", "Oct 18 – 24, 2026", "October 2026".
func englishTitle(g Granularity, d booking.Date, r booking.DateRange) string {
	switch g {
	case Day:
		return fmt.Sprintf("%s %d, %d", d.Month, d.Day, d.Year)
	case Month:
		return fmt.Sprintf("%s %d", d.Month, d.Year)
	}
	s, e := r.Start, r.End
	short := func(m time.Month) string { return m.String()[:3] }
	switch {
	case s.Year != e.Year:
		return fmt.Sprintf("%s %d, %d – %s %d, %d", short(s.Month), s.Day, s.Year, short(e.Month), e.Day, e.Year)
	case s.Month != e.Month:
		return fmt.Sprintf("%s %d – %s %d, %d", short(s.Month), s.Day, short(e.Month), e.Day, e.Year)
	default:
		return fmt.Sprintf("%s %d – %d, %d", short(s.Month), s.Day, e.Day, e.Year)
	}
}

// czechTitle: "18. října 2026", "12. – 18. 10. 2026", "říjen 2026".
func czechTitle(g Granularity, d booking.Date, r booking.DateRange) string {
	switch g {
	case Day:
		return fmt.Sprintf("%d. %s %d", d.Day, czechMonthsOf[d.Month-1], d.Year)
	case Month:
		return fmt.Sprintf("%s %d", czechMonths[d.Month-1], d.Year)
	}
	s, e := r.Start, r.End
	switch {
	case s.Year != e.Year:
		return fmt.Sprintf("%d. %d. %d – %d. %d. %d", s.Day, s.Month, s.Year, e.Day, e.Month, e.Year)
	case s.Month != e.Month:
		return fmt.Sprintf("%d. %d. – %d. %d. %d", s.Day, s.Month, e.Day, e.Month, e.Year)
	default:
		return fmt.Sprintf("%d. – %d. %d. %d", s.Day, e.Day, e.Month, e.Year)
	}
}

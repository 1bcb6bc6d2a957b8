package article

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var weekdays = [...]string{"nedeľa", "pondelok", "utorok", "streda", "štvrtok", "piatok", "sobota"}

// month names in the genitive, as used after a day number
var months = [...]string{
	"januára", "februára", "marca", "apríla", "mája", "júna",
	"júla", "augusta", "septembra", "októbra", "novembra", "decembra",
}

// Location is the zone dates are displayed in.
var Location = loadLocation("Europe/Bratislava")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatLongDate renders "Pondelok, 19. októbra 2026".
func FormatLongDate(t time.Time) string {
	t = t.In(Location)
	return fmt.Sprintf("%s, %d. %s %d", cases.Title(language.Slovak).String(weekdays[t.Weekday()]), t.Day(), months[t.Month()-1], t.Year())
}

// FormatShortDate renders "19. 10. 2026".
func FormatShortDate(t time.Time) string {
	t = t.In(Location)
	return fmt.Sprintf("%d. %d. %d", t.Day(), int(t.Month()), t.Year())
}

// FormatDateTime renders "19. 10. 2026, 08:05".
func FormatDateTime(t time.Time) string {
	t = t.In(Location)
	return fmt.Sprintf("%s, %02d:%02d", FormatShortDate(t), t.Hour(), t.Minute())
}

// Headline upper-cases a section name with Slovak casing rules.
// Casers are stateful, so each call builds its own.
func Headline(s string) string {
	return cases.Upper(language.Slovak).String(s)
}

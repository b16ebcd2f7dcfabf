// Package timezone переводит время между UTC и часовыми поясами пользователей.
// В БД всё хранится в UTC, локальное время только на входе и при показе.
package timezone

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // база IANA внутри бинарника
)

const (
	DateLayout    = "2006-01-02"
	ClockLayout   = "15:04"
	DisplayLayout = "2006-01-02 15:04 MST"
)

var ErrUnknownZone = errors.New("unknown timezone")

// Common список часовых поясов для выбора в UI
var Common = []string{
	"UTC",
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"America/Sao_Paulo",
	"Europe/London",
	"Europe/Paris",
	"Europe/Berlin",
	"Europe/Moscow",
	"Africa/Lagos",
	"Africa/Nairobi",
	"Asia/Dubai",
	"Asia/Kolkata",
	"Asia/Singapore",
	"Asia/Shanghai",
	"Asia/Tokyo",
	"Australia/Sydney",
	"Pacific/Auckland",
}

// Load загружает IANA зону; пустое имя и "Local" не принимаются
func Load(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return loc, nil
}

// Valid проверяет имя зоны
func Valid(name string) bool {
	_, err := Load(name)
	return err == nil
}

// LocalToUTC переводит настенное время в зоне loc в UTC.
// Неоднозначное время (осенний перевод часов) трактуется как стандартное,
// несуществующее (весенний перевод) - со смещением стандартного времени
func LocalToUTC(year int, month time.Month, day, hour, min int, loc *time.Location) time.Time {
	naive := time.Date(year, month, day, hour, min, 0, 0, time.UTC)

	type candidate struct {
		offset int
		dst    bool
	}

	var candidates []candidate
	seen := make(map[int]bool)
	for _, probe := range []time.Duration{-36 * time.Hour, 0, 36 * time.Hour} {
		p := naive.Add(probe).In(loc)
		_, off := p.Zone()
		if seen[off] {
			continue
		}
		seen[off] = true
		candidates = append(candidates, candidate{offset: off, dst: p.IsDST()})
	}

	var (
		best  time.Time
		found bool
		std   = candidates[0]
	)
	for _, c := range candidates {
		if !c.dst {
			std = c
		}
		u := naive.Add(-time.Duration(c.offset) * time.Second)
		l := u.In(loc)
		if l.Year() != year || l.Month() != month || l.Day() != day || l.Hour() != hour || l.Minute() != min {
			continue
		}
		switch {
		case !found:
			best, found = u, true
		case !l.IsDST() && best.In(loc).IsDST():
			best = u
		case l.IsDST() == best.In(loc).IsDST() && u.Before(best):
			best = u
		}
	}

	if found {
		return best.UTC()
	}
	return naive.Add(-time.Duration(std.offset) * time.Second).UTC()
}

// ParseLocal разбирает дату "2006-01-02" и время "15:04" в зоне zone и возвращает UTC
func ParseLocal(date, clock, zone string) (time.Time, error) {
	loc, err := Load(zone)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	c, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", clock, err)
	}
	return LocalToUTC(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), loc), nil
}

// ToLocal возвращает тот же момент в зоне zone
func ToLocal(t time.Time, zone string) (time.Time, error) {
	loc, err := Load(zone)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// Render форматирует момент для пользователя с аббревиатурой зоны.
// Неизвестная зона показывается в UTC
func Render(t time.Time, zone string) string {
	local, err := ToLocal(t, zone)
	if err != nil {
		return t.UTC().Format(DisplayLayout)
	}
	return local.Format(DisplayLayout)
}

// PreviewEntry один и тот же момент в другой зоне
type PreviewEntry struct {
	Zone         string    `json:"zone"`
	Abbreviation string    `json:"abbreviation"`
	Local        time.Time `json:"local"`
	Display      string    `json:"display"`
}

// Preview показывает момент в нескольких зонах, помогает при бронировании
// между часовыми поясами
func Preview(t time.Time, zones []string) ([]PreviewEntry, error) {
	entries := make([]PreviewEntry, 0, len(zones))
	for _, z := range zones {
		local, err := ToLocal(t, z)
		if err != nil {
			return nil, err
		}
		abbr, _ := local.Zone()
		entries = append(entries, PreviewEntry{
			Zone:         z,
			Abbreviation: abbr,
			Local:        local,
			Display:      local.Format(DisplayLayout),
		})
	}
	return entries, nil
}

// DayBounds начало и конец календарного дня date (YYYY-MM-DD) в зоне loc, в UTC
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	start := LocalToUTC(d.Year(), d.Month(), d.Day(), 0, 0, loc)
	next := d.AddDate(0, 0, 1)
	end := LocalToUTC(next.Year(), next.Month(), next.Day(), 0, 0, loc)
	return start, end, nil
}

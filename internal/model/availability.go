package model

import (
	"fmt"
	"time"
)

type ReservationKind string

const (
	ReservationSession ReservationKind = "session"
	ReservationCall    ReservationKind = "call"
)

// Reservation занятое время коуча (занятие или звонок)
type Reservation struct {
	Kind  ReservationKind `json:"type"`
	ID    int64           `json:"id"`
	Title string          `json:"title"`
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`
}

// Overlaps интервалы [s1,e1) и [s2,e2) пересекаются
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// SessionReservation представляет занятие как резерв времени
func SessionReservation(s *Session) Reservation {
	title := s.Title
	if title == "" {
		title = fmt.Sprintf("Session %d", s.SessionNumber)
	}
	return Reservation{
		Kind:  ReservationSession,
		ID:    s.ID,
		Title: title,
		Start: s.ScheduledAt,
		End:   s.EndsAt(),
	}
}

// CallReservation представляет звонок как резерв времени
func CallReservation(c *ScheduledCall) Reservation {
	title := c.Title
	if title == "" {
		title = string(c.CallType)
	}
	return Reservation{
		Kind:  ReservationCall,
		ID:    c.ID,
		Title: title,
		Start: c.ScheduledAt,
		End:   c.EndsAt(),
	}
}

// ClockTime время суток в минутах от полуночи
type ClockTime int

// ParseClockTime разбирает "09:30"
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On возвращает момент этого времени суток в указанный день в зоне loc
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

// DayHours рабочие часы в пределах одного дня
type DayHours struct {
	Start ClockTime
	End   ClockTime
}

// Length длительность рабочего дня
func (h DayHours) Length() time.Duration {
	return time.Duration(h.End-h.Start) * time.Minute
}

// WorkingHours рабочие часы по дням недели; отсутствующий день - выходной
type WorkingHours map[time.Weekday]DayHours

// SlotStride шаг перебора слотов
const SlotStride = 30 * time.Minute

// DefaultWorkingHours Пн-Пт 09:00-17:00, Сб-Вс 10:00-15:00
func DefaultWorkingHours() WorkingHours {
	weekday := DayHours{Start: 9 * 60, End: 17 * 60}
	weekend := DayHours{Start: 10 * 60, End: 15 * 60}
	return WorkingHours{
		time.Monday:    weekday,
		time.Tuesday:   weekday,
		time.Wednesday: weekday,
		time.Thursday:  weekday,
		time.Friday:    weekday,
		time.Saturday:  weekend,
		time.Sunday:    weekend,
	}
}

// For рабочие часы на день недели
func (w WorkingHours) For(day time.Weekday) (DayHours, bool) {
	h, ok := w[day]
	if !ok || h.End <= h.Start {
		return DayHours{}, false
	}
	return h, true
}

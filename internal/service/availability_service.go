package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
	"github.com/Freeeeeet/coach_marketplace/internal/timezone"
)

const (
	suggestionWindow = 4 * time.Hour
	maxSuggestions   = 5
)

// дни, которые перебираются если в тот же день вариантов нет
var suggestionDayOffsets = []int{1, 2, 3, 7}

// Availability результат проверки окна
type Availability struct {
	Available bool                `json:"available"`
	Reason    string              `json:"reason,omitempty"`
	Conflicts []model.Reservation `json:"conflicts,omitempty"`
}

// Slot свободное окно [Start, End) в UTC
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Suggestion альтернативное время для бронирования
type Suggestion struct {
	Slot
	SameDay    bool    `json:"same_day"`
	DeltaHours float64 `json:"delta_hours"`
}

// AvailabilityService свободное время коучей
type AvailabilityService struct {
	store   repository.Store
	hours   model.WorkingHours
	horizon time.Duration
	zones   []string
	now     Clock
	logger  *zap.Logger
}

func NewAvailabilityService(store repository.Store, policy Policy, clock Clock, logger *zap.Logger) *AvailabilityService {
	policy = policy.withDefaults()
	return &AvailabilityService{
		store:   store,
		hours:   policy.WorkingHours,
		horizon: policy.BookingHorizon,
		zones:   policy.CommonTimezones,
		now:     clock,
		logger:  logger,
	}
}

// reservations все занятия и звонки коуча, пересекающие [from, to), по времени начала
func reservations(ctx context.Context, r repository.Repos, coachID int64, from, to time.Time, excludeSessionID, excludeCallID int64) ([]model.Reservation, error) {
	sessions, err := r.Sessions.ListReserving(ctx, coachID, from, to, excludeSessionID)
	if err != nil {
		return nil, fmt.Errorf("list reserving sessions: %w", err)
	}
	calls, err := r.Calls.ListReserving(ctx, coachID, from, to, excludeCallID)
	if err != nil {
		return nil, fmt.Errorf("list reserving calls: %w", err)
	}

	out := make([]model.Reservation, 0, len(sessions)+len(calls))
	for _, s := range sessions {
		out = append(out, model.SessionReservation(s))
	}
	for _, c := range calls {
		out = append(out, model.CallReservation(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// check проверка окна в рамках переданной транзакции:
// прошлое, слишком далёкое будущее, затем пересечения
func (s *AvailabilityService) check(ctx context.Context, r repository.Repos, coachID int64, start, end time.Time, excludeSessionID, excludeCallID int64) (Availability, error) {
	now := s.now()
	if start.Before(now) {
		return Availability{Reason: ReasonPastTime}, nil
	}
	if start.After(now.Add(s.horizon)) {
		return Availability{Reason: ReasonTooFarFuture}, nil
	}

	conflicts, err := reservations(ctx, r, coachID, start, end, excludeSessionID, excludeCallID)
	if err != nil {
		return Availability{}, err
	}
	if len(conflicts) > 0 {
		return Availability{Reason: ReasonConflicts, Conflicts: conflicts}, nil
	}
	return Availability{Available: true}, nil
}

// Check проверяет свободно ли окно [start, end) у коуча
func (s *AvailabilityService) Check(ctx context.Context, coachID int64, start, end time.Time, excludeSessionID int64) (Availability, error) {
	if !end.After(start) {
		return Availability{}, validationErr("end", "window end must be after start")
	}
	return s.check(ctx, s.store.Repos(), coachID, start.UTC(), end.UTC(), excludeSessionID, 0)
}

// availabilityErr переводит недоступность окна в ошибку операции
func availabilityErr(a Availability) error {
	switch a.Reason {
	case "":
		return nil
	case ReasonConflicts:
		return &Error{
			Kind:      KindConflict,
			Reason:    ReasonConflicts,
			Err:       fmt.Errorf("coach has %d overlapping reservations", len(a.Conflicts)),
			Conflicts: a.Conflicts,
		}
	default:
		return validationErr(a.Reason, "requested time is not bookable")
	}
}

func (s *AvailabilityService) coachLocation(ctx context.Context, r repository.Repos, coachID int64) (*time.Location, error) {
	coach, err := loadUser(ctx, r, coachID)
	if err != nil {
		return nil, err
	}
	if !coach.IsCoach {
		return nil, notAllowed(ReasonWrongRole, "user %d is not a coach", coachID)
	}
	zone := coach.Timezone
	if zone == "" {
		zone = "UTC"
	}
	loc, err := timezone.Load(zone)
	if err != nil {
		return nil, validationErr("timezone", "coach timezone %q: %v", zone, err)
	}
	return loc, nil
}

// slotsOn свободные окна в рабочие часы календарного дня day (дата в зоне loc)
func (s *AvailabilityService) slotsOn(ctx context.Context, r repository.Repos, coachID int64, loc *time.Location, day time.Time, duration time.Duration) ([]Slot, error) {
	hours, ok := s.hours.For(day.Weekday())
	if !ok || duration > hours.Length() {
		return nil, nil
	}

	y, m, d := day.Date()
	dayStart := timezone.LocalToUTC(y, m, d, int(hours.Start)/60, int(hours.Start)%60, loc)
	dayEnd := timezone.LocalToUTC(y, m, d, int(hours.End)/60, int(hours.End)%60, loc)

	busy, err := reservations(ctx, r, coachID, dayStart, dayEnd, 0, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var slots []Slot
	for t := dayStart; !t.Add(duration).After(dayEnd); t = t.Add(model.SlotStride) {
		end := t.Add(duration)
		if t.Before(now) {
			continue
		}
		free := true
		for _, b := range busy {
			if model.Overlaps(t, end, b.Start, b.End) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, Slot{Start: t, End: end})
		}
	}
	return slots, nil
}

func minutes(n int) (time.Duration, error) {
	if n <= 0 {
		return 0, validationErr("duration", "duration must be positive")
	}
	return time.Duration(n) * time.Minute, nil
}

// Slots свободные окна коуча на дату (YYYY-MM-DD в часовом поясе коуча)
func (s *AvailabilityService) Slots(ctx context.Context, coachID int64, date string, durationMinutes int) ([]Slot, error) {
	duration, err := minutes(durationMinutes)
	if err != nil {
		return nil, err
	}
	day, err := time.Parse(timezone.DateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, validationErr("date", "parse date %q: %v", date, err)
	}

	r := s.store.Repos()
	loc, err := s.coachLocation(ctx, r, coachID)
	if err != nil {
		return nil, err
	}
	return s.slotsOn(ctx, r, coachID, loc, day, duration)
}

// Suggest варианты рядом с запрошенным временем: в тот же день в пределах
// 4 часов, иначе первый слот ближайшего из дней +1, +2, +3, +7
func (s *AvailabilityService) Suggest(ctx context.Context, coachID int64, requested time.Time, durationMinutes int) ([]Suggestion, error) {
	duration, err := minutes(durationMinutes)
	if err != nil {
		return nil, err
	}

	r := s.store.Repos()
	loc, err := s.coachLocation(ctx, r, coachID)
	if err != nil {
		return nil, err
	}

	local := requested.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	sameDay, err := s.slotsOn(ctx, r, coachID, loc, day, duration)
	if err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, slot := range sameDay {
		delta := math.Abs(slot.Start.Sub(requested).Hours())
		if delta <= suggestionWindow.Hours() {
			out = append(out, Suggestion{Slot: slot, SameDay: true, DeltaHours: delta})
		}
	}

	if len(out) == 0 {
		for _, offset := range suggestionDayOffsets {
			slots, err := s.slotsOn(ctx, r, coachID, loc, day.AddDate(0, 0, offset), duration)
			if err != nil {
				return nil, err
			}
			if len(slots) > 0 {
				out = append(out, Suggestion{
					Slot:       slots[0],
					DeltaHours: math.Abs(slots[0].Start.Sub(requested).Hours()),
				})
				break
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SameDay != out[j].SameDay {
			return out[i].SameDay
		}
		return out[i].DeltaHours < out[j].DeltaHours
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

// Preview момент в списке часовых поясов; пустой список - общий список зон
func (s *AvailabilityService) Preview(at time.Time, zones []string) ([]timezone.PreviewEntry, error) {
	if len(zones) == 0 {
		zones = s.zones
	}
	entries, err := timezone.Preview(at, zones)
	if err != nil {
		return nil, validationErr("timezone", "%v", err)
	}
	return entries, nil
}

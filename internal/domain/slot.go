package domain

import (
	"fmt"
	"strings"
	"time"
)

// SlotKind distinguishes the two INPE feed cadences.
type SlotKind int

const (
	SlotDaily SlotKind = iota
	SlotTenMinute
)

func (k SlotKind) String() string {
	switch k {
	case SlotDaily:
		return "daily"
	case SlotTenMinute:
		return "10min"
	default:
		return "unknown"
	}
}

// Slot is one retrievable unit of the feed: a full daily file or a
// 10-minute interval file.
type Slot struct {
	Kind  SlotKind
	Start time.Time
}

// NewDailySlot returns the daily slot covering the UTC date of t.
func NewDailySlot(t time.Time) Slot {
	t = t.UTC()
	return Slot{Kind: SlotDaily, Start: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// NewTenMinuteSlot returns the 10-minute slot starting at t. The minute must be a
// multiple of ten; seconds are discarded.
func NewTenMinuteSlot(t time.Time) (Slot, error) {
	t = t.UTC()
	if t.Minute()%10 != 0 {
		return Slot{}, fmt.Errorf("%w: minute %d is not a multiple of 10", ErrInvalidSlot, t.Minute())
	}
	return Slot{Kind: SlotTenMinute, Start: t.Truncate(time.Minute)}, nil
}

// TenMinuteSlotsBetween returns every 10-minute slot whose start lies in [from, to],
// oldest first. from is floored to the enclosing slot.
func TenMinuteSlotsBetween(from, to time.Time) []Slot {
	from = from.UTC().Truncate(10 * time.Minute)
	to = to.UTC()
	if to.Before(from) {
		return nil
	}
	slots := make([]Slot, 0, int(to.Sub(from)/(10*time.Minute))+1)
	for t := from; !t.After(to); t = t.Add(10 * time.Minute) {
		slots = append(slots, Slot{Kind: SlotTenMinute, Start: t})
	}
	return slots
}

// DailySlotsBetween returns one daily slot per UTC date in [start, end], inclusive.
func DailySlotsBetween(start, end time.Time) []Slot {
	first := NewDailySlot(start)
	last := NewDailySlot(end)
	if last.Start.Before(first.Start) {
		return nil
	}
	var slots []Slot
	for d := first.Start; !d.After(last.Start); d = d.AddDate(0, 0, 1) {
		slots = append(slots, Slot{Kind: SlotDaily, Start: d})
	}
	return slots
}

// ID returns the INPE file name for the slot, which doubles as its storage key.
func (s Slot) ID() string {
	switch s.Kind {
	case SlotTenMinute:
		return fmt.Sprintf("focos_10min_%s_%s.csv", s.Start.Format("20060102"), s.Start.Format("1504"))
	default:
		return fmt.Sprintf("focos_diario_br_%s.csv", s.Start.Format("20060102"))
	}
}

// ParseSlotID is the inverse of Slot.ID.
func ParseSlotID(id string) (Slot, error) {
	if day, ok := strings.CutPrefix(id, "focos_diario_br_"); ok {
		t, err := time.Parse("20060102.csv", day)
		if err != nil {
			return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, id)
		}
		return NewDailySlot(t), nil
	}
	if rest, ok := strings.CutPrefix(id, "focos_10min_"); ok {
		t, err := time.Parse("20060102_1504.csv", rest)
		if err != nil {
			return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, id)
		}
		return NewTenMinuteSlot(t)
	}
	return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, id)
}

// URL joins the feed base URL and the slot file name.
func (s Slot) URL(baseURL string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + s.ID()
}

// End returns the exclusive end of the interval the slot covers.
func (s Slot) End() time.Time {
	if s.Kind == SlotTenMinute {
		return s.Start.Add(10 * time.Minute)
	}
	return s.Start.AddDate(0, 0, 1)
}

func (s Slot) String() string {
	return s.ID()
}

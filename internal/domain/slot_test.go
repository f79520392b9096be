package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotID(t *testing.T) {
	tests := []struct {
		name     string
		slot     Slot
		expected string
	}{
		{"daily", NewDailySlot(time.Date(2024, 8, 26, 17, 45, 0, 0, time.UTC)), "focos_diario_br_20240826.csv"},
		{"ten minute", Slot{Kind: SlotTenMinute, Start: time.Date(2024, 8, 26, 9, 0, 0, 0, time.UTC)}, "focos_10min_20240826_0900.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.slot.ID())
			assert.Equal(t, tt.expected, tt.slot.String())
		})
	}
}

func TestSlotURL(t *testing.T) {
	s := NewDailySlot(time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC))
	want := "https://example.test/diario/Brasil/focos_diario_br_20240826.csv"
	assert.Equal(t, want, s.URL("https://example.test/diario/Brasil"))
	assert.Equal(t, want, s.URL("https://example.test/diario/Brasil/"))
}

func TestNewDailySlot_UTC(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	s := NewDailySlot(time.Date(2024, 8, 26, 22, 30, 0, 0, brt))
	assert.Equal(t, time.Date(2024, 8, 27, 0, 0, 0, 0, time.UTC), s.Start)
	assert.Equal(t, time.Date(2024, 8, 28, 0, 0, 0, 0, time.UTC), s.End())
}

func TestNewTenMinuteSlot(t *testing.T) {
	t.Run("aligned", func(t *testing.T) {
		s, err := NewTenMinuteSlot(time.Date(2024, 8, 26, 14, 20, 37, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 8, 26, 14, 20, 0, 0, time.UTC), s.Start)
		assert.Equal(t, time.Date(2024, 8, 26, 14, 30, 0, 0, time.UTC), s.End())
		assert.Equal(t, "10min", s.Kind.String())
	})

	t.Run("misaligned minute", func(t *testing.T) {
		_, err := NewTenMinuteSlot(time.Date(2024, 8, 26, 14, 25, 0, 0, time.UTC))
		require.ErrorIs(t, err, ErrInvalidSlot)
	})
}

func TestTenMinuteSlotsBetween(t *testing.T) {
	from := time.Date(2024, 8, 26, 23, 47, 0, 0, time.UTC)
	to := time.Date(2024, 8, 27, 0, 20, 0, 0, time.UTC)

	slots := TenMinuteSlotsBetween(from, to)
	require.Len(t, slots, 5)
	assert.Equal(t, "focos_10min_20240826_2340.csv", slots[0].ID())
	assert.Equal(t, "focos_10min_20240827_0020.csv", slots[4].ID())

	assert.Nil(t, TenMinuteSlotsBetween(to, from))
}

func TestDailySlotsBetween(t *testing.T) {
	start := time.Date(2024, 8, 30, 12, 0, 0, 0, time.UTC)
	end := time.Date(2024, 9, 2, 1, 0, 0, 0, time.UTC)

	slots := DailySlotsBetween(start, end)
	require.Len(t, slots, 4)
	assert.Equal(t, "focos_diario_br_20240830.csv", slots[0].ID())
	assert.Equal(t, "focos_diario_br_20240902.csv", slots[3].ID())

	assert.Len(t, DailySlotsBetween(start, start), 1)
	assert.Nil(t, DailySlotsBetween(end, start))
}

func TestFetchOutcome(t *testing.T) {
	tests := []struct {
		outcome FetchOutcome
		name    string
		usable  bool
	}{
		{OutcomeFetched, "fetched", true},
		{OutcomeCached, "cached", true},
		{OutcomeMissing, "missing", false},
		{OutcomeFailed, "failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.outcome.String())
			assert.Equal(t, tt.usable, FetchResult{Outcome: tt.outcome}.Usable())
		})
	}
}

func TestParseSlotID(t *testing.T) {
	tests := []struct {
		id      string
		want    Slot
		wantErr bool
	}{
		{id: "focos_diario_br_20240826.csv", want: NewDailySlot(time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC))},
		{id: "focos_10min_20240826_1420.csv", want: Slot{Kind: SlotTenMinute, Start: time.Date(2024, 8, 26, 14, 20, 0, 0, time.UTC)}},
		{id: "focos_10min_20240826_1425.csv", wantErr: true},
		{id: "focos_diario_br_2024-08-26.csv", wantErr: true},
		{id: "biomas.json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParseSlotID(tt.id)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSlot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.id, got.ID())
		})
	}
}

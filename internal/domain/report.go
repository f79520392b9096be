package domain

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const dateLayout = "2006-01-02"

// FRPStats summarizes the fire radiative power distribution of a report.
type FRPStats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Report is an immutable aggregate over hotspots whose UTC date falls in
// [Start, End]. It is built fresh for every request.
type Report struct {
	Start   string            `json:"start"`
	End     string            `json:"end"`
	Total   int               `json:"total"`
	ByRisk  map[RiskLevel]int `json:"by_risk"`
	ByBiome map[string]int    `json:"by_biome"`
	ByState map[string]int    `json:"by_state"`
	ByHour  [24]int           `json:"by_hour"`
	ByDay   map[string]int    `json:"by_day"`
	ByWeek  map[string]int    `json:"by_week"`
	FRP     FRPStats          `json:"frp"`
	Records []HotspotRecord   `json:"records"`
}

// Aggregate filters records to the inclusive date range and summarizes them.
// Only the date part of start and end is used. Records without a state are
// left out of ByState. The input slice is not modified.
func Aggregate(records []HotspotRecord, start, end time.Time) Report {
	first := NewDailySlot(start).Start
	last := NewDailySlot(end).Start

	rep := Report{
		Start:   first.Format(dateLayout),
		End:     last.Format(dateLayout),
		ByRisk:  make(map[RiskLevel]int, len(RiskLevels)),
		ByBiome: make(map[string]int),
		ByState: make(map[string]int),
		ByDay:   make(map[string]int),
		ByWeek:  make(map[string]int),
		Records: []HotspotRecord{},
	}
	for _, l := range RiskLevels {
		rep.ByRisk[l] = 0
	}
	if last.Before(first) {
		return rep
	}

	var frps []float64
	for _, r := range records {
		day := NewDailySlot(r.Timestamp).Start
		if day.Before(first) || day.After(last) {
			continue
		}
		rep.Records = append(rep.Records, r)
		if r.Risk != RiskUnclassified {
			rep.ByRisk[r.Risk]++
		}
		biome := r.Biome
		if biome == "" {
			biome = BiomeUnknown
		}
		rep.ByBiome[biome]++
		if r.State != "" {
			rep.ByState[r.State]++
		}
		rep.ByHour[r.Timestamp.UTC().Hour()]++
		rep.ByDay[day.Format(dateLayout)]++
		rep.ByWeek[weekStart(day).Format(dateLayout)]++
		frps = append(frps, r.FRP)
	}

	rep.Total = len(rep.Records)
	rep.FRP = frpStats(frps)
	slices.SortStableFunc(rep.Records, compareRecords)
	return rep
}

// weekStart returns the Monday of the week containing day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func frpStats(values []float64) FRPStats {
	if len(values) == 0 {
		return FRPStats{}
	}
	slices.Sort(values)
	return FRPStats{
		Count:  len(values),
		Sum:    floats.Sum(values),
		Min:    values[0],
		Max:    values[len(values)-1],
		Mean:   stat.Mean(values, nil),
		Median: percentile(values, 50),
		P90:    percentile(values, 90),
		P99:    percentile(values, 99),
	}
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, p float64) float64 {
	return stat.Quantile(p/100, stat.Empirical, sorted, nil)
}

// compareRecords orders by timestamp, then coordinates and satellite so the
// order is total.
func compareRecords(a, b HotspotRecord) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	ka, kb := a.Key(), b.Key()
	switch {
	case ka.Lat != kb.Lat:
		return cmpInt(ka.Lat, kb.Lat)
	case ka.Lon != kb.Lon:
		return cmpInt(ka.Lon, kb.Lon)
	case ka.Satellite < kb.Satellite:
		return -1
	case ka.Satellite > kb.Satellite:
		return 1
	}
	return 0
}

func cmpInt(a, b int64) int {
	if a < b {
		return -1
	}
	return 1
}

// SortRecords orders records by timestamp ascending in place.
func SortRecords(records []HotspotRecord) {
	slices.SortStableFunc(records, compareRecords)
}

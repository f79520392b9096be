package domain

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

type column int

const (
	colLat column = iota
	colLon
	colTimestamp
	colDate
	colTime
	colFRP
	colSatellite
	colBiome
	colState
	colMunicipality
)

var columnNames = map[column]string{
	colLat:          "lat",
	colLon:          "lon",
	colTimestamp:    "timestamp",
	colDate:         "date",
	colTime:         "time",
	colFRP:          "frp",
	colSatellite:    "satellite",
	colBiome:        "biome",
	colState:        "state",
	colMunicipality: "municipality",
}

// columnAliases maps folded header names seen across feed versions to canonical columns.
var columnAliases = map[string]column{
	"lat":           colLat,
	"latitude":      colLat,
	"lon":           colLon,
	"long":          colLon,
	"longitude":     colLon,
	"data_hora_gmt": colTimestamp,
	"datahora":      colTimestamp,
	"data_hora":     colTimestamp,
	"data":          colTimestamp,
	"acq_datetime":  colTimestamp,
	"datetime":      colTimestamp,
	"acq_date":      colDate,
	"acq_time":      colTime,
	"frp":           colFRP,
	"frp_mw":        colFRP,
	"satelite":      colSatellite,
	"satellite":     colSatellite,
	"sat":           colSatellite,
	"bioma":         colBiome,
	"biome":         colBiome,
	"estado":        colState,
	"state":         colState,
	"uf":            colState,
	"municipio":     colMunicipality,
	"municipality":  colMunicipality,
}

// timestampLayouts are tried in order; all are interpreted as UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// layout describes how one payload is encoded.
type layout struct {
	text         string
	encoding     string
	comma        rune
	decimalComma bool
	columns      map[column]int
}

// Normalize parses a raw slot payload into canonical records. Payload-level
// problems (undecodable bytes, missing header columns) are returned up front.
// Row-level problems are yielded as *MalformedRowError alongside a zero record
// and do not stop iteration. The sequence re-reads the payload on every range,
// so it can be consumed more than once with identical results.
//
// An empty payload is a slot with no detections and yields nothing.
func Normalize(p RawPayload) (iter.Seq2[HotspotRecord, error], error) {
	if isEmptyPayload(p.Data) {
		return func(func(HotspotRecord, error) bool) {}, nil
	}
	l, err := inspect(p.Data)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", p.Slot.ID(), err)
	}
	slotID := p.Slot.ID()

	return func(yield func(HotspotRecord, error) bool) {
		r := l.reader()
		if _, err := r.Read(); err != nil {
			return
		}
		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				line := 0
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					line = pe.Line
				}
				if !yield(HotspotRecord{}, &MalformedRowError{Line: line, Field: "row", Reason: err.Error()}) {
					return
				}
				continue
			}
			line, _ := r.FieldPos(0)
			if isBlank(row) {
				continue
			}
			rec, rowErr := l.record(row, line)
			if rowErr != nil {
				if !yield(HotspotRecord{}, rowErr) {
					return
				}
				continue
			}
			rec.SourceSlot = slotID
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}

// ValidatePayload reports whether data is a structurally valid feed file:
// decodable, with a header carrying the required columns. Empty and
// header-only files are valid; they are slots with no detections.
func ValidatePayload(data []byte) error {
	if isEmptyPayload(data) {
		return nil
	}
	_, err := inspect(data)
	return err
}

// isEmptyPayload reports a file holding nothing but a BOM and whitespace.
func isEmptyPayload(data []byte) bool {
	return len(bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))) == 0
}

// CollectRecords drains a normalized sequence, returning the kept records and
// the errors for dropped rows.
func CollectRecords(seq iter.Seq2[HotspotRecord, error]) ([]HotspotRecord, []error) {
	var records []HotspotRecord
	var dropped []error
	for rec, err := range seq {
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		records = append(records, rec)
	}
	return records, dropped
}

func inspect(data []byte) (*layout, error) {
	text, enc, err := decodePayload(data)
	if err != nil {
		return nil, err
	}
	l := &layout{text: text, encoding: enc, comma: sniffDelimiter(text)}
	l.decimalComma = l.comma == ';'

	header, err := l.reader().Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	l.columns = mapColumns(header)

	var missing []string
	for _, c := range []column{colLat, colLon} {
		if _, ok := l.columns[c]; !ok {
			missing = append(missing, columnNames[c])
		}
	}
	if !l.hasTimestamp() {
		missing = append(missing, columnNames[colTimestamp])
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return l, nil
}

// decodePayload walks the encoding fallback chain: UTF-8, Windows-1252, then
// ISO-8859-1, which accepts any byte sequence.
func decodePayload(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return "", "", errors.New("empty payload")
	}
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}
	if out, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return string(out), "windows-1252", nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode payload: %w", err)
	}
	return string(out), "iso-8859-1", nil
}

// sniffDelimiter picks ';' when the header line has more semicolons than commas.
func sniffDelimiter(text string) rune {
	first, _, _ := strings.Cut(text, "\n")
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}

func mapColumns(header []string) map[column]int {
	cols := make(map[column]int, len(header))
	for i, name := range header {
		key := strings.ReplaceAll(FoldName(strings.Trim(name, `"`)), " ", "_")
		c, ok := columnAliases[key]
		if !ok {
			continue
		}
		if _, seen := cols[c]; !seen {
			cols[c] = i
		}
	}
	return cols
}

func (l *layout) hasTimestamp() bool {
	if _, ok := l.columns[colTimestamp]; ok {
		return true
	}
	_, hasDate := l.columns[colDate]
	return hasDate
}

func (l *layout) reader() *csv.Reader {
	r := csv.NewReader(strings.NewReader(l.text))
	r.Comma = l.comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r
}

func (l *layout) field(row []string, c column) string {
	i, ok := l.columns[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (l *layout) record(row []string, line int) (HotspotRecord, error) {
	lat, err := l.coordinate(row, colLat, 90)
	if err != nil {
		return HotspotRecord{}, &MalformedRowError{Line: line, Field: columnNames[colLat], Reason: err.Error()}
	}
	lon, err := l.coordinate(row, colLon, 180)
	if err != nil {
		return HotspotRecord{}, &MalformedRowError{Line: line, Field: columnNames[colLon], Reason: err.Error()}
	}
	ts, err := l.timestamp(row)
	if err != nil {
		return HotspotRecord{}, &MalformedRowError{Line: line, Field: columnNames[colTimestamp], Reason: err.Error()}
	}

	rec := HotspotRecord{
		Timestamp:    ts,
		Lat:          lat,
		Lon:          lon,
		FRP:          l.frp(row),
		Satellite:    l.field(row, colSatellite),
		State:        l.field(row, colState),
		Municipality: l.field(row, colMunicipality),
	}
	if biome := l.field(row, colBiome); biome != "" {
		rec.Biome = biome
		rec.BiomeSource = BiomeSourceFeed
	}
	return rec, nil
}

func (l *layout) coordinate(row []string, c column, limit float64) (float64, error) {
	raw := l.field(row, c)
	if raw == "" {
		return 0, errors.New("missing")
	}
	v, err := l.parseDecimal(raw)
	if err != nil {
		return 0, fmt.Errorf("unparsable %q", raw)
	}
	if math.IsNaN(v) || v < -limit || v > limit {
		return 0, fmt.Errorf("out of range %q", raw)
	}
	return v, nil
}

// frp returns the fire radiative power, treating missing, unparsable, or
// negative values as 0.
func (l *layout) frp(row []string) float64 {
	raw := l.field(row, colFRP)
	if raw == "" {
		return 0
	}
	v, err := l.parseDecimal(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func (l *layout) parseDecimal(s string) (float64, error) {
	if l.decimalComma {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func (l *layout) timestamp(row []string) (time.Time, error) {
	if _, ok := l.columns[colTimestamp]; ok {
		return parseTimestamp(l.field(row, colTimestamp))
	}
	day, err := parseTimestamp(l.field(row, colDate))
	if err != nil {
		return time.Time{}, err
	}
	return parseHHMM(day, l.field(row, colTime))
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing")
	}
	for _, f := range timestampLayouts {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable %q", s)
}

// parseHHMM combines a base date with an HHMM time string (e.g. "1510" -> 15:10).
// An empty time keeps midnight; a malformed one is an error.
func parseHHMM(baseDate time.Time, hhmm string) (time.Time, error) {
	if hhmm == "" {
		return baseDate, nil
	}
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return time.Time{}, fmt.Errorf("unparsable time %q", hhmm)
	}
	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return time.Time{}, fmt.Errorf("unparsable time %q", hhmm)
	}
	return time.Date(baseDate.Year(), baseDate.Month(), baseDate.Day(), hour, mins, 0, 0, time.UTC), nil
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

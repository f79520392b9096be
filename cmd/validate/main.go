// Command validate checks the integrity of a raw feed directory: every cached
// INPE file must be named after a slot, be a structurally valid payload and
// hold detections that belong to that slot. When a biome reference is given
// it also reports how often the feed's own biome label agrees with the
// polygon lookup.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -raw-dir output_data/raw \
//	  -biomes geodata/biomas_5000.json \
//	  -max-drop-ratio 0.05
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/hotspot-etl/internal/adapter/biome"
	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

// maxPrintedErrors caps the detail printed per failing phase.
const maxPrintedErrors = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// feedFile is one cached payload and what normalizing it produced.
type feedFile struct {
	path    string
	slot    domain.Slot
	records []domain.HotspotRecord
	dropped []error
	err     error
}

func main() {
	rawDir := flag.String("raw-dir", "", "directory containing cached INPE feed files")
	biomesPath := flag.String("biomes", "", "optional biome GeoJSON used to cross-check feed biome labels")
	nameProp := flag.String("biome-name-property", biome.DefaultNameProperty, "feature property holding the biome name")
	maxDropRatio := flag.Float64("max-drop-ratio", 0.05, "largest tolerated share of malformed rows per file")
	flag.Parse()

	if *rawDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	var index *biome.Index
	if *biomesPath != "" {
		var err error
		index, err = biome.Load(*biomesPath, biome.Options{NameProperty: *nameProp})
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
	}

	if code := run(*rawDir, index, *maxDropRatio); code != 0 {
		os.Exit(code)
	}
}

func run(rawDir string, index *biome.Index, maxDropRatio float64) int {
	fmt.Println("=== Hotspot Feed Integrity Validation ===")
	fmt.Println()

	files, naming, err := loadFeedFiles(rawDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load feed files: %v\n", err)
		return 1
	}

	phases := []*phase{
		naming,
		validatePayloads(files),
		validateRows(files, maxDropRatio),
		validateSlotMembership(files),
	}
	if index != nil {
		phases = append(phases, validateBiomeLabels(files, index))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	rows, dropped := 0, 0
	for _, f := range files {
		rows += len(f.records)
		dropped += len(f.dropped)
	}
	fmt.Printf("Files: %d, records: %d, dropped rows: %d\n", len(files), rows, dropped)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxPrintedErrors {
				fmt.Printf("  ... and %d more\n", len(p.errors)-maxPrintedErrors)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

// loadFeedFiles reads every focos_*.csv file in dir. Files whose name does not
// map to a slot are reported in the returned naming phase and skipped.
func loadFeedFiles(dir string) ([]feedFile, *phase, error) {
	naming := &phase{name: "File naming"}

	paths, err := filepath.Glob(filepath.Join(dir, "focos_*.csv"))
	if err != nil {
		return nil, nil, err
	}
	slices.Sort(paths)

	files := make([]feedFile, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		slot, err := domain.ParseSlotID(name)
		if err != nil {
			naming.errorf("%s: %v", name, err)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}

		f := feedFile{path: path, slot: slot}
		seq, err := domain.Normalize(domain.RawPayload{Slot: slot, Data: data})
		if err != nil {
			f.err = err
		} else {
			f.records, f.dropped = domain.CollectRecords(seq)
		}
		files = append(files, f)
	}
	return files, naming, nil
}

func validatePayloads(files []feedFile) *phase {
	p := &phase{name: "Payload structure"}
	for _, f := range files {
		if f.err != nil {
			p.errorf("%s: %v", f.slot.ID(), f.err)
		}
	}
	return p
}

func validateRows(files []feedFile, maxDropRatio float64) *phase {
	p := &phase{name: "Row integrity"}
	for _, f := range files {
		total := len(f.records) + len(f.dropped)
		if total == 0 {
			continue
		}
		ratio := float64(len(f.dropped)) / float64(total)
		if ratio <= maxDropRatio {
			continue
		}
		p.errorf("%s: %d of %d rows malformed (%.1f%%), first: %v",
			f.slot.ID(), len(f.dropped), total, ratio*100, f.dropped[0])
	}
	return p
}

// validateSlotMembership checks that detections belong to their file. Daily
// files must hold their own UTC date; 10-minute files are published with lag,
// so any detection from the preceding day up to the slot end is accepted.
func validateSlotMembership(files []feedFile) *phase {
	p := &phase{name: "Slot membership"}
	for _, f := range files {
		from, to := f.slot.Start, f.slot.End()
		if f.slot.Kind == domain.SlotTenMinute {
			from = from.Add(-24 * time.Hour)
		}
		outside := 0
		for _, r := range f.records {
			if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
				outside++
			}
		}
		if outside > 0 {
			p.errorf("%s: %d detections outside [%s, %s)", f.slot.ID(), outside,
				from.Format(time.DateTime), to.Format(time.DateTime))
		}
	}
	return p
}

// validateBiomeLabels compares feed biome labels with the polygon lookup.
// Points the lookup cannot place are reported separately from disagreements.
func validateBiomeLabels(files []feedFile, index *biome.Index) *phase {
	p := &phase{name: "Biome label agreement"}
	labeled, unknown := 0, 0
	mismatches := make(map[string]int)
	for _, f := range files {
		for _, r := range f.records {
			if r.BiomeSource != domain.BiomeSourceFeed {
				continue
			}
			labeled++
			got := index.Lookup(r.Lat, r.Lon)
			switch {
			case got == domain.BiomeUnknown:
				unknown++
			case domain.FoldName(got) != domain.FoldName(r.Biome):
				mismatches[r.Biome+" -> "+got]++
			}
		}
	}

	keys := make([]string, 0, len(mismatches))
	for k := range mismatches {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		p.errorf("%s: %d detections", k, mismatches[k])
	}

	fmt.Printf("Biome labels: %d labeled, %d outside every polygon, %d disagreements (%s)\n",
		labeled, unknown, len(keys), strings.Join(index.Names(), ", "))
	return p
}

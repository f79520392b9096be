// Package domain models INPE wildfire hotspot ("foco de queimada") detections.
//
// # Data Source
//
// Hotspots are published by INPE's Programa Queimadas as CSV files on
// https://dataserver-coids.inpe.br/queimadas/queimadas/focos/csv/. Two cadences
// are ingested:
//
//	daily:  diario/Brasil/focos_diario_br_YYYYMMDD.csv
//	10-min: 10min/focos_10min_YYYYMMDD_HHMM.csv  (HHMM minute is a multiple of 10)
//
// Each file is a [Slot]. A 10-minute file that has not been published yet
// returns 404 and is simply retried on the next refresh.
//
// # Feed Conventions
//
// Column names vary by feed version. The normalizer folds header names
// (lower case, accents removed) and maps known aliases:
//
//	lat, latitude                  -> Lat
//	lon, long, longitude           -> Lon
//	data_hora_gmt, datahora, data  -> Timestamp (UTC)
//	acq_date + acq_time (HHMM)     -> Timestamp (FIRMS-style split columns)
//	frp, frp_mw                    -> FRP (MW)
//	satelite, satellite            -> Satellite
//	bioma, biome                   -> Biome (optional)
//	estado, uf / municipio         -> State / Municipality (optional)
//
// Files are usually UTF-8 but older daily files are Latin-1. Decoding falls
// back from UTF-8 to Windows-1252 to ISO-8859-1. Semicolon-delimited files
// use a decimal comma.
//
// A row missing coordinates or a parsable timestamp is dropped and counted.
// FRP is optional; missing or negative values are stored as 0.
//
// # Identity
//
// The same detection shows up in overlapping 10-minute files. Records are
// deduplicated on (lat, lon rounded to 4 decimals, timestamp in seconds,
// satellite). Four decimals is roughly 11 m, well under the ~375 m VIIRS pixel.
//
// # Risk Classification
//
// FRP sets a base tier from configured thresholds T1 < T2 < T3:
//
//	FRP < T1: Low | < T2: Medium | < T3: High | >= T3: Critical
//
// A detection inside a sensitive biome (by default Amazônia, Mata Atlântica,
// Cerrado, and Pantanal) is escalated one tier, capped at Critical. Unknown
// biomes never escalate.
package domain

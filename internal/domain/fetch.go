package domain

// FetchOutcome is how a slot fetch was resolved.
type FetchOutcome int

const (
	OutcomeFetched FetchOutcome = iota // downloaded and stored
	OutcomeCached                      // valid raw file already on disk
	OutcomeMissing                     // 404; the feed has not published the slot
	OutcomeFailed
)

func (o FetchOutcome) String() string {
	switch o {
	case OutcomeFetched:
		return "fetched"
	case OutcomeCached:
		return "cached"
	case OutcomeMissing:
		return "missing"
	default:
		return "failed"
	}
}

// FetchResult is the resolution of one slot. Payload is set for Fetched and
// Cached; Err is set for Failed.
type FetchResult struct {
	Slot     Slot
	Outcome  FetchOutcome
	Payload  RawPayload
	Attempts int
	Err      error
}

// Usable reports whether the result carries a payload to transform.
func (r FetchResult) Usable() bool {
	return r.Outcome == OutcomeFetched || r.Outcome == OutcomeCached
}

package recorder

// FetchEvent records the outcome of one metric group fetch.
type FetchEvent struct {
	Asset    string
	Metrics  []string
	Source   string
	Outcome  string // "OK", "SOFT_FAILURE" or "ERROR"
	Reason   string
	Attempts int
	Rows     int
	Artifact string
	Error    string
}

// MergeEvent records one merged dataset written to disk.
type MergeEvent struct {
	Asset      string
	PriceFile  string
	OutputFile string
	Tables     int
	Failed     int
	PriceRows  int
	Rows       int
}

// Recorder persists run history for later inspection.
type Recorder interface {
	RecordFetch(evt *FetchEvent) error
	RecordMerge(evt *MergeEvent) error
	Close() error
}

// Fetch outcomes.
const (
	OutcomeOK          = "OK"
	OutcomeSoftFailure = "SOFT_FAILURE"
	OutcomeError       = "ERROR"
)

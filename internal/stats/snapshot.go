package stats

// MessageCount is one entry in the top-error-messages-by-count ranking.
type MessageCount struct {
	MsgID uint64
	Text  string
	Count int64
}

// MessageTrend is one entry in the trending-messages ranking.
type MessageTrend struct {
	MsgID uint64
	Text  string
	Rate  float64
}

// Snapshot is an immutable, consistent view of WindowState for the
// reporter to render. It never aliases consumer-owned state.
type Snapshot struct {
	TakenAtMs            int64
	Entries              int64
	WindowMs             int64
	CollectedIntervalMs  int64
	CurrentPerSecondRate int
	Rate                 float64
	PeakRate             float64
	Errors               int64
	Infos                int64
	Debugs               int64
	Malformed            int64
	ErrorRate            float64
	TopErrorMessages     []MessageCount
	TrendingMessages     []MessageTrend
	PerSecTableSize      int
}

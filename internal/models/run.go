package models

import "time"

// ItemKind names the unit of work a pipeline item performed.
type ItemKind string

const (
	KindLiveboard   ItemKind = "liveboard"
	KindConnections ItemKind = "connections"
	KindVehicle     ItemKind = "vehicle"
	KindExport      ItemKind = "export"
)

// ItemResult is the outcome of one station, route or vehicle within a run.
type ItemResult struct {
	Kind   ItemKind `json:"kind"`
	Target string   `json:"target"`
	Rows   int      `json:"rowsWritten"`
	Error  string   `json:"error,omitempty"`

	Err error `json:"-"`
}

// OK reports whether the item completed without error.
func (r ItemResult) OK() bool {
	return r.Err == nil && r.Error == ""
}

// DelayStats summarises departure delays observed during a run.
type DelayStats struct {
	Count         int     `json:"count"`
	MeanSeconds   float64 `json:"meanSeconds"`
	StdDevSeconds float64 `json:"stddevSeconds"`
}

// RunSummary aggregates the item results of one pipeline run.
type RunSummary struct {
	RunID       string       `json:"runId"`
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt"`
	Items       []ItemResult `json:"items"`
	ItemsOK     int          `json:"itemsOk"`
	ItemsFailed int          `json:"itemsFailed"`
	RowsWritten int          `json:"rowsWritten"`
	Delays      DelayStats   `json:"delays"`
}

// Add appends an item result and updates the counters.
func (s *RunSummary) Add(item ItemResult) {
	if item.Err != nil && item.Error == "" {
		item.Error = item.Err.Error()
	}
	s.Items = append(s.Items, item)
	s.RowsWritten += item.Rows
	if item.OK() {
		s.ItemsOK++
	} else {
		s.ItemsFailed++
	}
}

// Failed returns the items that did not complete.
func (s *RunSummary) Failed() []ItemResult {
	var failed []ItemResult
	for _, item := range s.Items {
		if !item.OK() {
			failed = append(failed, item)
		}
	}
	return failed
}

// Package proto defines the message types exchanged over the JSON-over-TCP
// RPC layer (see pkg/rpc). Response types mirror the JSON the HTTP API
// produces so either surface can be decoded with them.
package proto

import "time"

// Method names served by the RPC listener.
const (
	MethodEventsGet           = "Events.Get"
	MethodEventsTimeline      = "Events.Timeline"
	MethodInsightsOverlaps    = "Insights.Overlaps"
	MethodInsightsGaps        = "Insights.Gaps"
	MethodInsightsInfluence   = "Insights.Influence"
	MethodIngestionIngestPath = "Ingestion.IngestPath"
	MethodIngestionStatus     = "Ingestion.Status"
)

// ---------- Common ----------

// Event is a stored historical event.
type Event struct {
	EventID         string    `json:"event_id"`
	EventName       string    `json:"event_name"`
	Description     string    `json:"description"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	DurationMinutes int64     `json:"duration_minutes"`
	ParentEventID   *string   `json:"parent_event_id"`
	ResearchValue   string    `json:"research_value"`
	Metadata        Metadata  `json:"metadata"`
}

type Metadata struct {
	Line int `json:"line"`
}

// ---------- Events ----------

type GetEventRequest struct {
	ID string `json:"id"`
}

type TimelineRequest struct {
	ID string `json:"id"`
}

// TimelineNode is an event with its nested descendants.
type TimelineNode struct {
	Event
	Children []TimelineNode `json:"children"`
}

// ---------- Insights ----------

type OverlapsRequest struct{}

type Overlap struct {
	Pair                   [2]Event `json:"overlappingEventPairs"`
	OverlapDurationMinutes int64    `json:"overlap_duration_minutes"`
}

type GapsRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Gap struct {
	StartOfGap      time.Time `json:"startOfGap"`
	EndOfGap        time.Time `json:"endOfGap"`
	DurationMinutes int64     `json:"durationMinutes"`
	PrecedingEvent  Event     `json:"precedingEvent"`
	SucceedingEvent Event     `json:"succeedingEvent"`
}

// GapsResponse has the same shape as the HTTP temporal-gaps body.
type GapsResponse struct {
	LargestGap *Gap   `json:"largestGap"`
	Message    string `json:"message"`
}

type InfluenceRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type InfluencePath struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	TotalDuration int64   `json:"total_duration"`
	Path          []Event `json:"path"`
}

// ---------- Ingestion ----------

type IngestPathRequest struct {
	FilePath string `json:"filePath"`
}

type IngestResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// JobStatusRequest asks for a job snapshot. With Wait set the server holds
// the call until the job is terminal or its call timeout passes, then
// answers with the latest snapshot either way.
type JobStatusRequest struct {
	JobID string `json:"jobId"`
	Wait  bool   `json:"wait,omitempty"`
}

type Job struct {
	JobID          string     `json:"jobId"`
	Status         string     `json:"status"`
	Source         string     `json:"source,omitempty"`
	TotalLines     int        `json:"totalLines"`
	ProcessedLines int        `json:"processedLines"`
	ErrorLines     int        `json:"errorLines"`
	Errors         []string   `json:"errors"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	FailureReason  string     `json:"failureReason,omitempty"`
	InsertedEvents int        `json:"insertedEvents"`
}

// Terminal reports whether the job has finished.
func (j Job) Terminal() bool {
	return j.Status == "COMPLETED" || j.Status == "FAILED"
}

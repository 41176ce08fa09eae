package contracts

import "time"

// SeriesEventType names the mutation that produced an event
type SeriesEventType string

const (
	EventImported SeriesEventType = "imported"
	EventUpserted SeriesEventType = "upserted"
	EventRemoved  SeriesEventType = "removed"
	EventCleared  SeriesEventType = "cleared"
	EventRestored SeriesEventType = "restored"
	EventDigest   SeriesEventType = "digest"
)

// SeriesEvent is pushed to realtime subscribers after the series changes
type SeriesEvent struct {
	Type    SeriesEventType `json:"type"`
	Version uint64          `json:"version"`
	Records int             `json:"records"`
	Changed int             `json:"changed"`
	KPI     KPISnapshot     `json:"kpi"`
	At      time.Time       `json:"at"`
}

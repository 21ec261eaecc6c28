package model

// LinkStatus describes whether a link is in service.
type LinkStatus string

const (
	LinkStatusActive LinkStatus = "active"
	LinkStatusBroken LinkStatus = "broken"
)

// Link is a directed edge between two nodes.
//
// Capacity is an advisory ceiling in kW; dispatch does not enforce it and
// CurrentLoad is not recomputed per tick.
type Link struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`

	Capacity    float64 `json:"capacity"`
	CurrentLoad float64 `json:"current_load"`

	Status LinkStatus `json:"status"`
}

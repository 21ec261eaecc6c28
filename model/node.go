package model

// NodeKind is the role a node plays in the grid.
type NodeKind string

const (
	NodeKindSource   NodeKind = "source"
	NodeKindConsumer NodeKind = "consumer"
	NodeKindStorage  NodeKind = "storage"
)

// NodeStatus gates whether a node takes part in load/generation accounting.
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
	NodeStatusFault    NodeStatus = "fault"
)

// Node is a point in the distribution network: a generator, a consumer or a
// storage asset. Load is only meaningful for consumers and Generation only
// for sources.
type Node struct {
	ID      string   `json:"id"`
	Kind    NodeKind `json:"type"`
	Name    string   `json:"name"`
	Voltage float64  `json:"voltage"` // kV, informational

	Load       float64 `json:"load"`       // kW
	Generation float64 `json:"generation"` // kW

	Status NodeStatus `json:"status"`

	// Lat/Lon are carried through for map consumers and serialise as null
	// when unknown.
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// IsActive reports whether the node participates in accounting.
func (n *Node) IsActive() bool {
	return n.Status == NodeStatusActive
}

// Coord returns a pointer suitable for Node.Lat / Node.Lon.
func Coord(v float64) *float64 {
	return &v
}

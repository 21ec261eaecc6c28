package grid

import "github.com/signalsfoundry/gridsim/model"

// Well-known node IDs of the seed topology. PrimarySourceID is the balancing
// (slack) source; RenewableSourceID is sampled against the solar potential.
const (
	PrimarySourceID   = "gen1"
	RenewableSourceID = "sol1"
)

// seedNodes returns the fixed topology every engine starts from.
func seedNodes() []model.Node {
	return []model.Node{
		{
			ID:         PrimarySourceID,
			Kind:       model.NodeKindSource,
			Name:       "Main Power Plant",
			Generation: 1000,
			Status:     model.NodeStatusActive,
			Lat:        model.Coord(38.9),
			Lon:        model.Coord(-77.0),
		},
		{
			ID:     RenewableSourceID,
			Kind:   model.NodeKindSource,
			Name:   "Solar Farm A",
			Status: model.NodeStatusActive,
			Lat:    model.Coord(38.95),
			Lon:    model.Coord(-77.05),
		},
		{ID: "cons1", Kind: model.NodeKindConsumer, Name: "Residential District", Load: 200, Status: model.NodeStatusActive},
		{ID: "cons2", Kind: model.NodeKindConsumer, Name: "Industrial Zone", Load: 500, Status: model.NodeStatusActive},
		{ID: "cons3", Kind: model.NodeKindConsumer, Name: "Commercial Hub", Load: 150, Status: model.NodeStatusActive},
	}
}

func seedLinks() []model.Link {
	return []model.Link{
		{ID: "l1", SourceID: PrimarySourceID, TargetID: "cons1", Capacity: 1000, Status: model.LinkStatusActive},
		{ID: "l2", SourceID: PrimarySourceID, TargetID: "cons2", Capacity: 1000, Status: model.LinkStatusActive},
		{ID: "l3", SourceID: PrimarySourceID, TargetID: "cons3", Capacity: 1000, Status: model.LinkStatusActive},
		{ID: "l4", SourceID: RenewableSourceID, TargetID: "cons1", Capacity: 500, Status: model.LinkStatusActive},
	}
}

func cloneNodes(nodes []model.Node) []model.Node {
	out := make([]model.Node, len(nodes))
	for i, n := range nodes {
		if n.Lat != nil {
			n.Lat = model.Coord(*n.Lat)
		}
		if n.Lon != nil {
			n.Lon = model.Coord(*n.Lon)
		}
		out[i] = n
	}
	return out
}

func cloneLinks(links []model.Link) []model.Link {
	out := make([]model.Link, len(links))
	copy(out, links)
	return out
}

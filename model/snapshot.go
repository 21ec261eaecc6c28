package model

import (
	"encoding/json"
	"time"
)

// GridSnapshot is the immutable result of one tick. Nodes and Links are
// copies taken after the tick mutated the engine's state.
type GridSnapshot struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`

	TotalLoad       float64 `json:"total_load"`
	TotalGeneration float64 `json:"total_generation"`
	Efficiency      float64 `json:"efficiency"`
	LeakDetected    bool    `json:"leak_detected"`

	Timestamp time.Time `json:"-"`
}

// Node returns a copy of the node with the given ID from the snapshot.
func (s GridSnapshot) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

type snapshotWire struct {
	Nodes           []Node  `json:"nodes"`
	Links           []Link  `json:"links"`
	TotalLoad       float64 `json:"total_load"`
	TotalGeneration float64 `json:"total_generation"`
	Efficiency      float64 `json:"efficiency"`
	LeakDetected    bool    `json:"leak_detected"`
	Timestamp       float64 `json:"timestamp"`
}

// MarshalJSON encodes the timestamp as fractional unix seconds, which is
// what dashboard consumers of the snapshot stream expect.
func (s GridSnapshot) MarshalJSON() ([]byte, error) {
	nodes, links := s.Nodes, s.Links
	if nodes == nil {
		nodes = []Node{}
	}
	if links == nil {
		links = []Link{}
	}
	return json.Marshal(snapshotWire{
		Nodes:           nodes,
		Links:           links,
		TotalLoad:       s.TotalLoad,
		TotalGeneration: s.TotalGeneration,
		Efficiency:      s.Efficiency,
		LeakDetected:    s.LeakDetected,
		Timestamp:       unixSeconds(s.Timestamp),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *GridSnapshot) UnmarshalJSON(data []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	sec := int64(w.Timestamp)
	nsec := int64((w.Timestamp - float64(sec)) * float64(time.Second))
	*s = GridSnapshot{
		Nodes:           w.Nodes,
		Links:           w.Links,
		TotalLoad:       w.TotalLoad,
		TotalGeneration: w.TotalGeneration,
		Efficiency:      w.Efficiency,
		LeakDetected:    w.LeakDetected,
		Timestamp:       time.Unix(sec, nsec),
	}
	return nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

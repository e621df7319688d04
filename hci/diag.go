package hci

import (
	jsoniter "github.com/json-iterator/go"
)

// PoolSnapshot is a point-in-time copy of one credit pool.
type PoolSnapshot struct {
	MTU      int `json:"mtu"`
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
}

// PendingSnapshot is a point-in-time copy of one pending-credit entry.
type PendingSnapshot struct {
	Handle      uint16 `json:"handle"`
	LinkType    string `json:"link_type"`
	Outstanding int    `json:"outstanding"`
}

// Snapshot is a consistent view of the data channel's state, taken under
// the channel lock. Intended for diagnostics and tooling.
type Snapshot struct {
	Initialized bool              `json:"initialized"`
	Classic     *PoolSnapshot     `json:"classic,omitempty"`
	LowEnergy   *PoolSnapshot     `json:"low_energy,omitempty"`
	Links       int               `json:"links"`
	Queued      int               `json:"queued"`
	Pending     []PendingSnapshot `json:"pending,omitempty"`
}

// Snapshot captures the current accounting state.
func (c *DataChannel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Initialized: c.initialized,
		Links:       len(c.links),
		Queued:      c.queue.len(),
	}
	if c.classic != nil {
		s.Classic = &PoolSnapshot{MTU: c.classic.mtu, Capacity: c.classic.capacity, InFlight: c.classic.inFlight}
	}
	if c.le != nil {
		s.LowEnergy = &PoolSnapshot{MTU: c.le.mtu, Capacity: c.le.capacity, InFlight: c.le.inFlight}
	}
	for h, ent := range c.pending {
		s.Pending = append(s.Pending, PendingSnapshot{
			Handle:      h,
			LinkType:    ent.linkType.String(),
			Outstanding: ent.outstanding,
		})
	}
	return s
}

// JSON renders the snapshot for tooling.
func (s Snapshot) JSON() ([]byte, error) {
	return jsoniter.MarshalIndent(s, "", "  ")
}

package hci

import "testing"

func qp(handle uint16, t LinkType, pri Priority) *QueuedPacket {
	return &QueuedPacket{Handle: handle, LinkType: t, Priority: pri}
}

func handlesOf(pp []*QueuedPacket) []uint16 {
	var hh []uint16
	for _, p := range pp {
		hh = append(hh, p.Handle)
	}
	return hh
}

func TestQueuePushOrder(t *testing.T) {
	var q outboundQueue
	q.push(qp(1, LinkClassic, PriorityLow))
	q.push(qp(2, LinkClassic, PriorityLow))
	q.push(qp(3, LinkClassic, PriorityHigh))
	q.push(qp(4, LinkClassic, PriorityHigh))
	q.push(qp(5, LinkClassic, PriorityLow))

	if q.len() != 5 {
		t.Fatalf("len %d, want 5", q.len())
	}

	pool := &creditPool{capacity: 5}
	poolFor := func(LinkType) *creditPool { return pool }
	got := handlesOf(q.selectReady(poolFor, map[*creditPool]int{pool: 5}))

	// highs drain first in arrival order, then the lows
	want := []uint16{3, 4, 1, 2, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
	if q.len() != 0 {
		t.Fatalf("len %d after full drain", q.len())
	}
}

func TestQueueSelectReadySkipsExhaustedPool(t *testing.T) {
	var q outboundQueue
	q.push(qp(1, LinkClassic, PriorityLow))
	q.push(qp(2, LinkClassic, PriorityLow))
	q.push(qp(3, LinkLowEnergy, PriorityLow))

	classic := &creditPool{capacity: 4}
	le := &creditPool{capacity: 4}
	poolFor := func(t LinkType) *creditPool {
		if t == LinkLowEnergy {
			return le
		}
		return classic
	}

	got := handlesOf(q.selectReady(poolFor, map[*creditPool]int{classic: 0, le: 1}))
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("selected %v, want [3]", got)
	}
	// the skipped classic packets keep their order
	rest := handlesOf(q.selectReady(poolFor, map[*creditPool]int{classic: 2, le: 0}))
	if len(rest) != 2 || rest[0] != 1 || rest[1] != 2 {
		t.Fatalf("selected %v, want [1 2]", rest)
	}
}

func TestQueueSelectReadySharedPoolSharesBudget(t *testing.T) {
	var q outboundQueue
	q.push(qp(1, LinkClassic, PriorityLow))
	q.push(qp(2, LinkLowEnergy, PriorityLow))

	shared := &creditPool{capacity: 4}
	poolFor := func(LinkType) *creditPool { return shared }

	got := handlesOf(q.selectReady(poolFor, map[*creditPool]int{shared: 1}))
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("selected %v, want [1]", got)
	}
	if q.len() != 1 {
		t.Fatalf("len %d, want 1", q.len())
	}
}

func TestQueueSelectReadyNoBudget(t *testing.T) {
	var q outboundQueue
	q.push(qp(1, LinkClassic, PriorityLow))

	pool := &creditPool{capacity: 4}
	if got := q.selectReady(func(LinkType) *creditPool { return pool }, map[*creditPool]int{pool: 0}); got != nil {
		t.Fatalf("selected %v with zero budget", handlesOf(got))
	}
	if q.len() != 1 {
		t.Fatal("queue disturbed by an empty selection")
	}
}

func TestQueueDrop(t *testing.T) {
	var q outboundQueue
	q.push(qp(1, LinkClassic, PriorityLow))
	q.push(qp(2, LinkClassic, PriorityHigh))
	q.push(qp(1, LinkClassic, PriorityHigh))
	q.push(qp(3, LinkClassic, PriorityLow))

	dropped := q.drop(func(p *QueuedPacket) bool { return p.Handle == 1 })
	if len(dropped) != 2 {
		t.Fatalf("dropped %d, want 2", len(dropped))
	}
	if q.len() != 2 {
		t.Fatalf("len %d, want 2", q.len())
	}
}

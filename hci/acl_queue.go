package hci

import "bytes"

// QueuedPacket is one outbound ACL packet waiting for a controller buffer
// credit. The queue owns wire exclusively until the packet is written or
// dropped.
type QueuedPacket struct {
	Handle   uint16
	LinkType LinkType
	Priority Priority

	wire *bytes.Buffer // complete packet: HCI type + ACL header + payload
}

// outboundQueue keeps pending packets in send-eligibility order. High
// priority packets are inserted ahead of every queued low priority packet,
// so the queue is always a high prefix followed by a low suffix; within a
// priority class arrival order is kept.
type outboundQueue struct {
	high []*QueuedPacket
	low  []*QueuedPacket
}

func (q *outboundQueue) push(p *QueuedPacket) {
	if p.Priority == PriorityHigh {
		q.high = append(q.high, p)
		return
	}
	q.low = append(q.low, p)
}

func (q *outboundQueue) len() int {
	return len(q.high) + len(q.low)
}

func (q *outboundQueue) clear() {
	q.high = nil
	q.low = nil
}

// selectReady walks the queue in order and moves packets whose pool still
// has a tentative credit into the returned batch. Packets whose pool is
// exhausted are skipped in place so one starved link type cannot block the
// other. budget is keyed by pool so link types sharing a pool share the
// allowance. The scan stops once every budget hits zero.
func (q *outboundQueue) selectReady(pool func(LinkType) *creditPool, budget map[*creditPool]int) []*QueuedPacket {
	var batch []*QueuedPacket

	remaining := 0
	for _, n := range budget {
		remaining += n
	}
	if remaining == 0 {
		return nil
	}

	take := func(in []*QueuedPacket) []*QueuedPacket {
		kept := in[:0]
		for i, p := range in {
			if remaining == 0 {
				kept = append(kept, in[i:]...)
				break
			}
			cp := pool(p.LinkType)
			if budget[cp] > 0 {
				budget[cp]--
				remaining--
				batch = append(batch, p)
				continue
			}
			kept = append(kept, p)
		}
		return kept
	}

	q.high = take(q.high)
	q.low = take(q.low)
	return batch
}

// drop removes every queued packet matching pred and returns the removed
// packets so the caller can reclaim their buffers.
func (q *outboundQueue) drop(pred func(*QueuedPacket) bool) []*QueuedPacket {
	var dropped []*QueuedPacket
	filter := func(in []*QueuedPacket) []*QueuedPacket {
		kept := in[:0]
		for _, p := range in {
			if pred(p) {
				dropped = append(dropped, p)
				continue
			}
			kept = append(kept, p)
		}
		return kept
	}
	q.high = filter(q.high)
	q.low = filter(q.low)
	return dropped
}

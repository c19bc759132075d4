package engine

import (
	"sync"

	"github.com/weftworks/weft/pkg/models"
)

// pendingInputs is the arena of input slots for one execution, one slot per
// graph node, allocated up front. Each slot guards its own accumulator map:
// propagation is the single writer per delivery and dispatch is the single
// reader, so a per-slot mutex is all the synchronization the arena needs.
type pendingInputs struct {
	slots map[string]*inputSlot
}

type inputSlot struct {
	mu   sync.Mutex
	data map[string]*models.OneOrMany
}

// newPendingInputs allocates an empty slot for every node ID.
func newPendingInputs(nodeIDs []string) *pendingInputs {
	slots := make(map[string]*inputSlot, len(nodeIDs))
	for _, id := range nodeIDs {
		slots[id] = &inputSlot{data: make(map[string]*models.OneOrMany)}
	}

	return &pendingInputs{slots: slots}
}

// deliver appends value to the node's accumulator for key. A first delivery
// creates the accumulator; further deliveries from other predecessors append,
// never overwrite.
func (p *pendingInputs) deliver(nodeID, key string, value any) {
	slot, ok := p.slots[nodeID]
	if !ok {
		return
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if existing, ok := slot.data[key]; ok {
		existing.Append(value)

		return
	}

	slot.data[key] = models.NewOneOrMany(value)
}

// hasInput reports whether at least one value has been delivered to the node.
func (p *pendingInputs) hasInput(nodeID string) bool {
	slot, ok := p.slots[nodeID]
	if !ok {
		return false
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	return len(slot.data) > 0
}

// claim removes and returns the node's raw accumulators. The caller owns the
// returned map; a suspended node's inputs are put back with restore.
func (p *pendingInputs) claim(nodeID string) map[string]*models.OneOrMany {
	slot, ok := p.slots[nodeID]
	if !ok {
		return map[string]*models.OneOrMany{}
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	claimed := slot.data
	slot.data = make(map[string]*models.OneOrMany)

	return claimed
}

// restore puts previously claimed accumulators back into the node's slot,
// merging with anything delivered in the meantime.
func (p *pendingInputs) restore(nodeID string, inputs map[string]*models.OneOrMany) {
	slot, ok := p.slots[nodeID]
	if !ok {
		return
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	for key, accumulator := range inputs {
		if existing, ok := slot.data[key]; ok {
			for _, item := range accumulator.Items {
				existing.Append(item)
			}

			continue
		}

		slot.data[key] = accumulator
	}
}

// snapshot returns a deep copy of every non-empty slot, keyed by node ID.
func (p *pendingInputs) snapshot() map[string]map[string]*models.OneOrMany {
	out := make(map[string]map[string]*models.OneOrMany)

	for nodeID, slot := range p.slots {
		slot.mu.Lock()

		if len(slot.data) > 0 {
			copied := make(map[string]*models.OneOrMany, len(slot.data))
			for key, accumulator := range slot.data {
				copied[key] = &models.OneOrMany{Items: append([]any(nil), accumulator.Items...)}
			}

			out[nodeID] = copied
		}

		slot.mu.Unlock()
	}

	return out
}

// load rebuilds the arena contents from a persisted snapshot.
func (p *pendingInputs) load(saved map[string]map[string]*models.OneOrMany) {
	for nodeID, inputs := range saved {
		slot, ok := p.slots[nodeID]
		if !ok {
			continue
		}

		slot.mu.Lock()
		slot.data = make(map[string]*models.OneOrMany, len(inputs))

		for key, accumulator := range inputs {
			slot.data[key] = &models.OneOrMany{Items: append([]any(nil), accumulator.Items...)}
		}

		slot.mu.Unlock()
	}
}

// resolve turns raw accumulators into the map a runner receives: the single
// value or the accumulated list per input key.
func resolve(inputs map[string]*models.OneOrMany) map[string]any {
	resolved := make(map[string]any, len(inputs))
	for key, accumulator := range inputs {
		resolved[key] = accumulator.Value()
	}

	return resolved
}

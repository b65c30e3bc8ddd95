package trust

import (
	"sort"
	"time"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
)

// Traceable is the minimal surface causality reconstruction needs from an
// event: its own id and the id of the message that caused it. Keeping this
// an interface (rather than a concrete event type) lets the aggregate
// consult this package during validation without an import cycle.
type Traceable interface {
	TraceID() uuid.UUID
	TraceCausation() uuid.UUID
}

// CausalChain reconstructs the causal history of fromEventID: starting at
// the named event, it follows causation back through the log until it
// reaches an id that names no event in events (a root command's
// self-referential message id, never itself published as an event), then
// returns the chain in root-to-leaf order.
func CausalChain[E Traceable](events []E, fromEventID uuid.UUID) ([]E, error) {
	byID := make(map[uuid.UUID]E, len(events))
	for _, e := range events {
		byID[e.TraceID()] = e
	}

	start, ok := byID[fromEventID]
	if !ok {
		return nil, common.NewErrNotFound("event", fromEventID)
	}

	var chain []E
	current := start
	for {
		chain = append(chain, current)
		parent, ok := byID[current.TraceCausation()]
		if !ok || parent.TraceID() == current.TraceID() {
			break
		}
		current = parent
	}

	// chain was built leaf-to-root; reverse to root-to-leaf.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// EventsInRange returns every event whose UUIDv7 timestamp falls in
// [from, to), found by binary search over events sorted by id — sorting an
// event log by event id already yields chronological order, so no separate
// time index is needed.
func EventsInRange[E Traceable](events []E, from, to time.Time) []E {
	sorted := make([]E, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return uuidLess(sorted[i].TraceID(), sorted[j].TraceID())
	})

	lo := sort.Search(len(sorted), func(i int) bool {
		return !common.TimeOf(sorted[i].TraceID()).Before(from)
	})
	hi := sort.Search(len(sorted), func(i int) bool {
		return !common.TimeOf(sorted[i].TraceID()).Before(to)
	})
	if lo >= hi {
		return nil
	}
	return sorted[lo:hi]
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

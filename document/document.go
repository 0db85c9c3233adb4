// Package document defines the collaboration layer's boundary to the
// canvas document model. The layer treats document items as opaque except
// for a stable unique identifier, which is used for deduplication during
// reconciliation; rendering, hit-testing, and tool logic live entirely on
// the other side of the Model interface.
package document

import (
	"encoding/json"
	"sync"
)

// Item is one drawing operation in the shared document. Payload carries
// the item's content verbatim; the collaboration layer never inspects it.
type Item struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Model is the document-model collaborator consumed by the collaboration
// layer. Implementations must be safe for concurrent use: transport
// callbacks invoke these methods from library goroutines.
type Model interface {
	// ItemCount returns the current number of items.
	ItemCount() int
	// Items returns the current items in insertion order.
	Items() []Item
	// ApplyRemoteDraw appends one item received from a peer.
	ApplyRemoteDraw(item Item)
	// ApplyRemoteClear removes all items on a remote clear.
	ApplyRemoteClear()
	// ApplyIncomingSync appends reconciliation items. The caller has
	// already filtered out identifiers the model reported via Items, so
	// implementations append in the given order.
	ApplyIncomingSync(items []Item)
}

// MemoryModel is an ordered in-memory Model. It is the default document
// store for a session; state lives exactly as long as the process.
type MemoryModel struct {
	mu    sync.RWMutex
	items []Item
}

// NewMemoryModel creates an empty in-memory document model.
func NewMemoryModel() *MemoryModel {
	return &MemoryModel{}
}

// ItemCount returns the number of items held.
func (m *MemoryModel) ItemCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Items returns a copy of the items in insertion order.
func (m *MemoryModel) Items() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Item(nil), m.items...)
}

// ApplyRemoteDraw appends one item.
func (m *MemoryModel) ApplyRemoteDraw(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
}

// ApplyRemoteClear removes all items.
func (m *MemoryModel) ApplyRemoteClear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
}

// ApplyIncomingSync appends reconciliation items in order.
func (m *MemoryModel) ApplyIncomingSync(items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

package document

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryDSN opens the database in memory, matching the session-scoped
// lifetime of a canvas document. Pass a file path instead to keep a
// document across restarts.
const MemoryDSN = ":memory:"

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS items (
  item_id TEXT PRIMARY KEY,
  payload BLOB
);
`,
}

// SQLiteModel is a Model backed by a SQLite database. Insertion order is
// preserved via rowid, and the item_id primary key makes duplicate
// inserts impossible even if a caller bypasses reconciliation dedup.
//
// The Model interface has no error returns, so database failures degrade
// to an empty view; they are logged so a broken store is distinguishable
// from an empty document.
type SQLiteModel struct {
	// mu serializes writers so that ItemCount and Items observe a
	// consistent view between the count query and the item scan.
	mu     sync.RWMutex
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) a SQLite-backed document model at the
// given DSN and runs migrations. Use MemoryDSN for a session-scoped
// document. A nil logger defaults to slog.Default().
func OpenSQLite(dsn string, logger *slog.Logger) (*SQLiteModel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open document database: %w", err)
	}

	// A single connection keeps :memory: databases from evaporating
	// between pool checkouts.
	db.SetMaxOpenConns(1)

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply document migration: %w", err)
		}
	}

	return &SQLiteModel{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (m *SQLiteModel) Close() error {
	return m.db.Close()
}

// ItemCount returns the number of stored items.
func (m *SQLiteModel) ItemCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int
	if err := m.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		m.logger.Error("document item count failed", "error", err)
		return 0
	}
	return count
}

// Items returns all items in insertion (rowid) order.
func (m *SQLiteModel) Items() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.Query(`SELECT item_id, payload FROM items ORDER BY rowid`)
	if err != nil {
		m.logger.Error("document item query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var payload []byte
		if err := rows.Scan(&item.ID, &payload); err != nil {
			m.logger.Error("document item scan failed", "error", err)
			return items
		}
		if len(payload) > 0 {
			item.Payload = append(item.Payload, payload...)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		m.logger.Error("document item scan failed", "error", err)
	}
	return items
}

// ApplyRemoteDraw inserts one item. Re-delivered items (same ID) are
// ignored.
func (m *SQLiteModel) ApplyRemoteDraw(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(item)
}

// ApplyRemoteClear removes all items.
func (m *SQLiteModel) ApplyRemoteClear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.db.Exec(`DELETE FROM items`); err != nil {
		m.logger.Error("document clear failed", "error", err)
	}
}

// ApplyIncomingSync inserts reconciliation items in order.
func (m *SQLiteModel) ApplyIncomingSync(items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.insert(item)
	}
}

func (m *SQLiteModel) insert(item Item) {
	_, err := m.db.Exec(`INSERT OR IGNORE INTO items (item_id, payload) VALUES (?, ?)`,
		item.ID, []byte(item.Payload))
	if err != nil {
		m.logger.Error("document insert failed", "item", item.ID, "error", err)
	}
}

package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func testModels(t *testing.T) map[string]Model {
	t.Helper()

	sqlite, err := OpenSQLite(MemoryDSN, nil)
	if err != nil {
		t.Fatalf("open sqlite model: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Model{
		"memory": NewMemoryModel(),
		"sqlite": sqlite,
	}
}

func TestModelPreservesInsertionOrder(t *testing.T) {
	for name, model := range testModels(t) {
		t.Run(name, func(t *testing.T) {
			for index := range 5 {
				model.ApplyRemoteDraw(Item{
					ID:      fmt.Sprintf("item-%d", index),
					Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, index)),
				})
			}

			if got := model.ItemCount(); got != 5 {
				t.Fatalf("ItemCount = %d, want 5", got)
			}

			items := model.Items()
			for index, item := range items {
				want := fmt.Sprintf("item-%d", index)
				if item.ID != want {
					t.Errorf("items[%d].ID = %q, want %q", index, item.ID, want)
				}
			}
		})
	}
}

func TestModelClearRemovesEverything(t *testing.T) {
	for name, model := range testModels(t) {
		t.Run(name, func(t *testing.T) {
			model.ApplyRemoteDraw(Item{ID: "a"})
			model.ApplyRemoteDraw(Item{ID: "b"})
			model.ApplyRemoteClear()

			if got := model.ItemCount(); got != 0 {
				t.Fatalf("ItemCount after clear = %d, want 0", got)
			}
			if items := model.Items(); len(items) != 0 {
				t.Fatalf("Items after clear = %v, want empty", items)
			}
		})
	}
}

func TestModelIncomingSyncAppends(t *testing.T) {
	for name, model := range testModels(t) {
		t.Run(name, func(t *testing.T) {
			model.ApplyRemoteDraw(Item{ID: "local-1"})
			model.ApplyIncomingSync([]Item{{ID: "remote-1"}, {ID: "remote-2"}})

			items := model.Items()
			if len(items) != 3 {
				t.Fatalf("len(items) = %d, want 3", len(items))
			}
			if items[0].ID != "local-1" || items[2].ID != "remote-2" {
				t.Fatalf("unexpected order: %v", items)
			}
		})
	}
}

func TestSQLiteModelIgnoresDuplicateIDs(t *testing.T) {
	model, err := OpenSQLite(MemoryDSN, nil)
	if err != nil {
		t.Fatalf("open sqlite model: %v", err)
	}
	defer model.Close()

	model.ApplyRemoteDraw(Item{ID: "dup", Payload: json.RawMessage(`{"v":1}`)})
	model.ApplyRemoteDraw(Item{ID: "dup", Payload: json.RawMessage(`{"v":2}`)})

	if got := model.ItemCount(); got != 1 {
		t.Fatalf("ItemCount = %d, want 1", got)
	}
	items := model.Items()
	if string(items[0].Payload) != `{"v":1}` {
		t.Fatalf("payload = %s, want first write kept", items[0].Payload)
	}
}

func TestSQLiteModelRoundTripsPayload(t *testing.T) {
	model, err := OpenSQLite(MemoryDSN, nil)
	if err != nil {
		t.Fatalf("open sqlite model: %v", err)
	}
	defer model.Close()

	payload := json.RawMessage(`{"points":[[0,0],[4,4]],"width":2}`)
	model.ApplyRemoteDraw(Item{ID: "stroke-1", Payload: payload})

	items := model.Items()
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if string(items[0].Payload) != string(payload) {
		t.Fatalf("payload = %s, want %s", items[0].Payload, payload)
	}
}

func TestSQLiteModelLogsDatabaseErrors(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	model, err := OpenSQLite(MemoryDSN, logger)
	if err != nil {
		t.Fatalf("open sqlite model: %v", err)
	}
	model.Close()

	if got := model.ItemCount(); got != 0 {
		t.Fatalf("ItemCount on closed db = %d, want 0", got)
	}
	if items := model.Items(); items != nil {
		t.Fatalf("Items on closed db = %v, want nil", items)
	}
	model.ApplyRemoteDraw(Item{ID: "late"})
	model.ApplyRemoteClear()

	for _, message := range []string{
		"document item count failed",
		"document item query failed",
		"document insert failed",
		"document clear failed",
	} {
		if !strings.Contains(logs.String(), message) {
			t.Errorf("log output missing %q:\n%s", message, logs.String())
		}
	}
}

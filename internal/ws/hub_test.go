package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreadwatch/dreadwatch/internal/dread"
	"github.com/dreadwatch/dreadwatch/internal/store"
	wsHub "github.com/dreadwatch/dreadwatch/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore(t *testing.T, assignments ...dread.LevelAssignment) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "dread.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if len(assignments) > 0 {
		if err := st.ApplyRanking(context.Background(), assignments); err != nil {
			t.Fatalf("seed ranking: %v", err)
		}
	}
	return st
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, st *store.Store) (wsURL string, hub *wsHub.Hub) {
	t.Helper()

	hub = wsHub.New(st, testInterval)
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg wsHub.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, raw)
	}
	return msg
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateUpdate(t *testing.T) {
	st := newStore(t,
		dread.LevelAssignment{AreaID: "castle", Level: dread.LevelSevere},
		dread.LevelAssignment{AreaID: "swamp", Level: dread.LevelHigh},
	)
	wsURL, _ := startHub(t, st)

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	if msg.Event != "dread_update" {
		t.Errorf("event: got %q, want dread_update", msg.Event)
	}
	if len(msg.Data) != 2 {
		t.Fatalf("data: got %d areas, want 2", len(msg.Data))
	}
	if msg.Data[0].AreaID != "castle" || msg.Data[0].DreadLevel != 2 {
		t.Errorf("data[0]: got %+v", msg.Data[0])
	}
}

func TestHub_EmptyStore_EmptyList(t *testing.T) {
	wsURL, _ := startHub(t, newStore(t))

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	if len(msg.Data) != 0 {
		t.Errorf("data: got %v, want empty", msg.Data)
	}
}

func TestHub_BroadcastReflectsNewRanking(t *testing.T) {
	st := newStore(t)
	wsURL, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // initial empty update

	if err := st.ApplyRanking(context.Background(), []dread.LevelAssignment{
		{AreaID: "castle", Level: dread.LevelSevere},
	}); err != nil {
		t.Fatalf("ApplyRanking: %v", err)
	}

	// The next tick must carry the new ranking.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		if len(msg.Data) == 1 && msg.Data[0].AreaID == "castle" {
			return
		}
	}
	t.Fatal("broadcast never reflected the new ranking")
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub := startHub(t, newStore(t))

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}

	// Give the hub a moment to register the clients.
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
)

func TestHub_NotifyReachesViewer(t *testing.T) {
	hub := NewHubService(logger.Discard())
	go hub.Run()
	defer hub.Stop()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.GetClientCount() != 1 {
		t.Fatalf("client count = %d, expected 1", hub.GetClientCount())
	}

	hub.Notify(dto.CaptureEvent{ID: "cap-7", Image: "a.jpg", Boxes: [][4]int{{1, 2, 3, 4}}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var event dto.CaptureEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("invalid event %s: %v", msg, err)
	}
	if event.ID != "cap-7" || event.GPS.Valid {
		t.Errorf("event = %+v", event)
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	// Run is not started, so nothing drains the broadcast channel.
	hub := NewHubService(logger.Discard())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast([]byte("frame"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked")
	}
	if hub.Dropped() != 100-sendBuffer {
		t.Errorf("Dropped = %d, expected %d", hub.Dropped(), 100-sendBuffer)
	}
}

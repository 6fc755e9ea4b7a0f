// Package testfixtures provides in-process fakes of the dashboard backend
// for tests: an event hub that pushes over SSE and WebSocket, and a REST
// backend routed with gorilla/mux.
package testfixtures

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsUpgrader is used to upgrade HTTP connections to WebSocket.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// HelloFrame is the first message of every stream, carrying no event type.
const HelloFrame = `{"event": null}`

type frame struct {
	data string
	raw  string
	drop bool
}

type client struct {
	frames chan frame
	sse    bool
}

// Hub fans frames out to every connected stream client.
type Hub struct {
	mu       sync.Mutex
	clients  map[int]*client
	nextID   int
	connects int
	tokens   []string
	status   int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[int]*client)}
}

// RejectWith makes new connections fail with status. Zero accepts again.
func (h *Hub) RejectWith(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
}

// Connects returns how many streams have been accepted so far.
func (h *Hub) Connects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects
}

// Clients returns the number of currently connected streams.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Tokens returns the Authorization header of every connection attempt.
func (h *Hub) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens...)
}

// WaitForClients polls until n streams are connected or timeout elapses.
func (h *Hub) WaitForClients(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if h.Clients() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h.Clients() >= n
}

// WaitForConnects polls until n streams have been accepted in total.
func (h *Hub) WaitForConnects(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if h.Connects() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h.Connects() >= n
}

// Publish sends an event with the given type and payload keys.
func (h *Hub) Publish(eventType string, payload map[string]any) {
	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["EventType"] = eventType
	b, err := json.Marshal(msg)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: marshal event: %v", err))
	}
	h.Send(string(b))
}

// Send delivers data as one message to every client.
func (h *Hub) Send(data string) {
	h.broadcast(frame{data: data})
}

// SendRaw writes chunk verbatim to SSE clients. WebSocket clients ignore it.
func (h *Hub) SendRaw(chunk string) {
	h.broadcast(frame{raw: chunk})
}

// Disconnect closes every current stream from the server side.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.frames <- frame{drop: true}
		delete(h.clients, id)
	}
}

func (h *Hub) broadcast(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if f.raw != "" && !c.sse {
			continue
		}
		c.frames <- f
	}
}

// admit records the attempt and returns the status to fail with, if any.
func (h *Hub) admit(r *http.Request) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens = append(h.tokens, r.Header.Get("Authorization"))
	return h.status
}

func (h *Hub) register(sse bool) (int, *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{frames: make(chan frame, 256), sse: sse}
	h.nextID++
	h.connects++
	h.clients[h.nextID] = c
	return h.nextID, c
}

func (h *Hub) unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// ServeSSE streams frames as text/event-stream.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	if status := h.admit(r); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream;charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	id, c := h.register(true)
	defer h.unregister(id)

	writeSSE(w, HelloFrame)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-c.frames:
			if f.drop {
				return
			}
			if f.raw != "" {
				_, _ = fmt.Fprint(w, f.raw)
			} else {
				writeSSE(w, f.data)
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, data string) {
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\r\n", line)
	}
	_, _ = fmt.Fprint(w, "\r\n")
}

// ServeWS streams frames as WebSocket text messages.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if status := h.admit(r); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, c := h.register(false)
	defer h.unregister(id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(HelloFrame)); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case f := <-c.frames:
			if f.drop {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f.data)); err != nil {
				return
			}
		}
	}
}

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/idgen"
)

const (
	// replayCapacity bounds how far back a reconnecting client can resume.
	replayCapacity = 1000

	sseKeepaliveInterval = 15 * time.Second
	sseClientBuffer      = 64
)

// sseEvent is one frame of the feed. IDs are assigned by the hub and start
// at 1 each time the process starts.
type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// replayLog keeps the last replayCapacity frames, oldest first once wrapped.
type replayLog struct {
	mu     sync.RWMutex
	frames [replayCapacity]sseEvent
	head   int // slot the next frame goes into
	size   int
}

func (l *replayLog) add(evt sseEvent) {
	l.mu.Lock()
	l.frames[l.head] = evt
	l.head = (l.head + 1) % replayCapacity
	l.size = min(l.size+1, replayCapacity)
	l.mu.Unlock()
}

// after copies out the logged frames with ID > lastID, oldest first.
func (l *replayLog) after(lastID uint64) []*sseEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*sseEvent
	oldest := (l.head - l.size + replayCapacity) % replayCapacity
	for i := range l.size {
		evt := l.frames[(oldest+i)%replayCapacity]
		if evt.ID > lastID {
			out = append(out, &evt)
		}
	}
	return out
}

// sseHub pushes server events to connected SSE clients and logs recent
// frames so clients can resume with Last-Event-ID.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  atomic.Uint64
	log     replayLog
}

type sseClient struct {
	id      string
	topics  []string // bus topic patterns; none means every topic
	ch      chan *sseEvent
	dropped atomic.Int64
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

// broadcast assigns the next frame ID to payload, logs it, and offers it to
// each client subscribed to topic. A client whose buffer is full misses the
// frame and has it counted against it.
func (h *sseHub) broadcast(topic string, payload []byte) {
	evt := &sseEvent{ID: h.nextID.Add(1), Topic: topic, Data: payload}
	h.log.add(*evt)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matchesTopic(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			c.dropped.Add(1)
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{
		id:     idgen.MustGenerate(idgen.PrefixStreamClient),
		topics: topics,
		ch:     make(chan *sseEvent, sseClientBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns the logged frames after lastID. Frames that have
// already rotated out of the log are gone.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	return h.log.after(lastID)
}

// matchesTopic reports whether topic passes the client's filter, e.g.
// "cloud.events.linode.*" passes "cloud.events.linode.linode_boot".
func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern applies bus subject wildcards: "*" is exactly one
// segment and a trailing ">" is one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	want := strings.Split(pattern, ".")
	have := strings.Split(topic, ".")
	for i, seg := range want {
		switch {
		case seg == ">":
			return i < len(have)
		case i >= len(have):
			return false
		case seg != "*" && seg != have[i]:
			return false
		}
	}
	return len(want) == len(have)
}

// parseTopics splits the comma-separated topics query parameter.
func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// handleEventStream handles GET /v1/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	topics := parseTopics(r.URL.Query().Get("topics"))
	client := s.sseHub.subscribe(topics)
	s.logger.Debug("sse client connected", "client", client.id, "remote", r.RemoteAddr, "topics", topics)
	defer func() {
		s.sseHub.unsubscribe(client)
		if n := client.dropped.Load(); n > 0 {
			s.logger.Warn("sse client dropped events", "client", client.id, "dropped", n)
		}
		s.logger.Debug("sse client disconnected", "client", client.id)
	}()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Frames up to sent have been written; the live channel may hold
	// copies of replayed frames.
	sent := s.replay(w, client, r.Header.Get("Last-Event-ID"))
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			if evt.ID <= sent {
				continue
			}
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// replay writes the logged frames after the client's Last-Event-ID and
// returns the highest ID covered. An unparsable ID, or one the hub has not
// issued yet (the client saw a previous process), replays nothing.
func (s *Server) replay(w http.ResponseWriter, client *sseClient, header string) uint64 {
	if header == "" {
		return 0
	}
	lastID, err := strconv.ParseUint(header, 10, 64)
	if err != nil || lastID > s.sseHub.nextID.Load() {
		return 0
	}
	sent := lastID
	for _, evt := range s.sseHub.eventsSince(lastID) {
		if client.matchesTopic(evt.Topic) {
			writeSSEEvent(w, evt)
		}
		sent = evt.ID
	}
	return sent
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

package websocket

import (
	"sync"

	"ride-share/pkg/logger"
)

// Hub groups connections by topic (a ride id) and fans messages out to
// every subscriber of a topic.
type Hub struct {
	topics map[string]map[*Connection]struct{}
	mu     sync.RWMutex
	log    logger.Logger
}

// NewHub creates an empty hub
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Connection]struct{}),
		log:    log,
	}
}

// Subscribe registers conn under its topic
func (h *Hub) Subscribe(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[conn.Topic]
	if !ok {
		subs = make(map[*Connection]struct{})
		h.topics[conn.Topic] = subs
	}
	subs[conn] = struct{}{}

	h.log.WithFields(logger.LogFields{
		"topic":   conn.Topic,
		"user_id": conn.Identity.ID,
		"total":   len(subs),
	}).Debug("websocket_subscribed", "Connection subscribed")
}

// Unsubscribe removes conn and closes it
func (h *Hub) Unsubscribe(conn *Connection) {
	h.mu.Lock()
	if subs, ok := h.topics[conn.Topic]; ok {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.topics, conn.Topic)
		}
	}
	h.mu.Unlock()

	conn.Close()
}

// Broadcast sends message to every subscriber of topic and returns how many
// connections accepted it. Dead connections are dropped.
func (h *Hub) Broadcast(topic string, message interface{}) int {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.topics[topic]))
	for conn := range h.topics[topic] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	sent := 0
	for _, conn := range conns {
		if err := conn.WriteJSON(message); err != nil {
			if err == ErrConnectionClosed {
				h.Unsubscribe(conn)
				continue
			}
			h.log.WithFields(logger.LogFields{"topic": topic}).Error("websocket_broadcast_failed", err)
			continue
		}
		sent++
	}
	return sent
}

// Count returns the number of subscribers of topic
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// CloseAll closes every connection; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[string]map[*Connection]struct{})
	h.mu.Unlock()

	for _, subs := range topics {
		for conn := range subs {
			conn.Close()
		}
	}
}

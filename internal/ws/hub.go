package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages build-log stream subscriptions keyed by project name.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with project name.
type message struct {
	project string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	project string
	client  Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.project]; !ok {
				h.clients[sub.project] = make(map[Subscriber]struct{})
			}
			h.clients[sub.project][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.project]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.project)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.project]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.project)
				}
			}
		}
	}
}

// Register adds a client to a project stream.
func (h *Hub) Register(project string, client Subscriber) {
	h.register <- subscription{project: project, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(project string, client Subscriber) {
	h.unreg <- subscription{project: project, client: client}
}

// Broadcast sends payload to all project clients.
func (h *Hub) Broadcast(project string, payload []byte) {
	h.broadcast <- message{project: project, payload: payload}
}

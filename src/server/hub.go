package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"market-sentinel/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub owns the client set. Every send on a client channel happens here, so
// closing it on unregister is safe.
func (s *APIServer) runHub() {
	for {
		select {
		case <-s.quit:
			for client := range s.clients {
				s.dropClient(client)
			}
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.connected.Store(int64(len(s.clients)))
			s.replay(client)

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				s.dropClient(client)
			}

		case client := <-s.resync:
			if _, ok := s.clients[client]; ok {
				s.replay(client)
			}

		case update := <-s.broadcast:
			if update.Type == models.UpdateTypeTick && update.Tick != nil {
				s.remember(*update.Tick, update.Timestamp)
			}

			for client := range s.clients {
				if !client.wants(update) {
					continue
				}
				select {
				case client.send <- update:
				default:
					// Slow client, disconnect so the hub never blocks
					s.Logger.Warning("Dropping slow WebSocket client")
					s.dropClient(client)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) dropClient(client *Client) {
	delete(s.clients, client)
	close(client.send)
	s.connected.Store(int64(len(s.clients)))
}

func (s *APIServer) connectionCount() int64 {
	return s.connected.Load()
}

// -----------------------------------------------------------------------------

// replay sends the last known tick of every symbol the client follows.
func (s *APIServer) replay(client *Client) {
	for _, update := range s.snapshot() {
		if !client.wants(update) {
			continue
		}
		select {
		case client.send <- update:
		default:
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) remember(tick models.MTick, ts int64) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.latest[tick.Symbol] = tick
	s.lastUpdate = ts
}

func (s *APIServer) snapshot() []models.MLiveUpdate {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	symbols := make([]string, 0, len(s.latest))
	for sym := range s.latest {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	updates := make([]models.MLiveUpdate, 0, len(symbols))
	for _, sym := range symbols {
		t := s.latest[sym]
		updates = append(updates, models.MLiveUpdate{
			Type:      models.UpdateTypeTick,
			Tick:      &t,
			Timestamp: s.lastUpdate,
		})
	}
	return updates
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues an update for the hub. It never blocks: a full queue or a
// stopped server drops the update.
func (s *APIServer) Broadcast(update models.MLiveUpdate) {
	select {
	case <-s.quit:
		return
	default:
	}

	select {
	case s.broadcast <- update:
	default:
		s.Logger.Warning("Live feed queue full, dropping %s update", update.Type)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		send: make(chan models.MLiveUpdate, clientQueueSize),
	}

	select {
	case s.register <- client:
	case <-s.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe command. An empty symbol list
// follows every symbol. Malformed JSON disconnects the client.
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	symbols := make([]string, 0, len(cmd.Symbols))
	for _, sym := range cmd.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	client.subscribe(symbols)

	select {
	case s.resync <- client:
	case <-s.quit:
	}
}

package server

import (
	"sync"
	"time"

	"market-sentinel/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait       = 2 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 4096
	clientQueueSize = 256
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	hub  *APIServer
	conn *websocket.Conn
	send chan models.MLiveUpdate

	mu      sync.RWMutex
	symbols map[string]struct{} // empty = all symbols
}

// -----------------------------------------------------------------------------

func (c *Client) subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		c.symbols[s] = struct{}{}
	}
}

// wants reports whether the update concerns a followed symbol.
func (c *Client) wants(update models.MLiveUpdate) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}

	var symbol string
	switch {
	case update.Tick != nil:
		symbol = update.Tick.Symbol
	case update.Signal != nil:
		symbol = update.Signal.Symbol
	}
	_, ok := c.symbols[symbol]
	return ok
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
		c.hub.Logger.Debug("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package webapi

import (
	"encoding/json"
	"sync"

	"thermoreg/pkg/logger"

	"github.com/gorilla/websocket"
)

// clientSync tracks connected websocket clients. Writes to a connection
// only happen under mutex, so broadcast and direct replies never interleave.
type clientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
	log     *logger.Logger
}

func newClientSync(log *logger.Logger) *clientSync {
	return &clientSync{clients: make(map[*websocket.Conn]bool), log: log}
}

func (c *clientSync) broadcast(pm *websocket.PreparedMessage) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			c.log.Debug("dropping client %s: %v", ws.RemoteAddr(), err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *clientSync) broadcastJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		c.log.Error("failed to prepare message: %v", err)
		return
	}
	c.broadcast(pm)
}

func (c *clientSync) send(ws *websocket.Conn, msg any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return ws.WriteJSON(msg)
}

func (c *clientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *clientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSync) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.clients)
}

func (c *clientSync) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		ws.Close()
		delete(c.clients, ws)
	}
}

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

package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"thermoreg/pkg/logger"

	wrapper "github.com/grid-x/modbus"
)

// Client is a lazily connected modbus TCP client. It never blocks waiting
// for the device: a failed connect is returned to the caller and retried
// on the next operation.
type Client struct {
	mu      sync.Mutex
	handler *wrapper.TCPClientHandler
	client  wrapper.Client
	config  *Config
	log     *logger.Logger
}

func NewClient(config *Config) *Client {
	return &Client{
		config: config,
		log:    logger.New("ModbusConn"),
	}
}

// connect must be called with c.mu held.
func (c *Client) connect(ctx context.Context) error {
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler, c.client = nil, nil
	}

	url := fmt.Sprintf("%s:%d", c.config.Modbus.Host, c.config.Modbus.Port)
	handler := wrapper.NewTCPClientHandler(url)
	handler.SlaveID = c.config.Modbus.SlaveID
	handler.Timeout = time.Second * time.Duration(c.config.Modbus.Timeout)
	handler.ProtocolRecoveryTimeout = 250 * time.Millisecond
	handler.LinkRecoveryTimeout = 5 * time.Second

	c.log.Info("connecting to %s...", url)
	if err := handler.Connect(ctx); err != nil {
		return fmt.Errorf("modbus connect %s: %w", url, err)
	}

	c.handler = handler
	c.client = wrapper.NewClient(handler)
	c.log.Info("connected to %s", url)
	return nil
}

// do runs op with the connection lock held, reconnecting once if the
// connection is missing or broken.
func (c *Client) do(ctx context.Context, op func(wrapper.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if c.client == nil {
			if err = c.connect(ctx); err != nil {
				return err
			}
		}
		err = op(c.client)
		if err == nil {
			return nil
		}
		if !isConnError(err) {
			return err
		}
		c.log.Error("connection error: %v, reconnecting", err)
		_ = c.handler.Close()
		c.handler, c.client = nil, nil
	}
	return err
}

func (c *Client) WriteRegisters(ctx context.Context, addr, quantity uint16, raw []byte) error {
	return c.do(ctx, func(mc wrapper.Client) error {
		_, err := mc.WriteMultipleRegisters(ctx, addr, quantity, raw)
		return err
	})
}

func (c *Client) ReadRegisters(ctx context.Context, addr, quantity uint16) ([]byte, error) {
	var data []byte
	err := c.do(ctx, func(mc wrapper.Client) error {
		var rerr error
		data, rerr = mc.ReadHoldingRegisters(ctx, addr, quantity)
		return rerr
	})
	return data, err
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler, c.client = nil, nil
	}
}

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed by the remote host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused")
}

package app

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// SocketConn 一條可寫的 websocket 連線 (*websocket.Conn 即滿足)
type SocketConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

type registeredConn struct {
	mu   sync.Mutex // gofiber conn 不允許並發寫
	conn SocketConn
}

// ConnRegistry 本程序內 connID -> socket handle 的對照表.
// presence 的正本在 redis，這裡只放 transport handle
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*registeredConn
}

// NewConnRegistry create conn registry
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]*registeredConn)}
}

// Register attach a live socket handle under connID
func (r *ConnRegistry) Register(connID string, conn SocketConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &registeredConn{conn: conn}
}

// Unregister drop the handle, idempotent
func (r *ConnRegistry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// Len current number of registered handles
func (r *ConnRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Push write a text frame to one connection
func (r *ConnRegistry) Push(connID string, data []byte) error {
	r.mu.RLock()
	rc, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		// redis 的 presence 可能比本地 registry 晚一步，不算致命
		return errors.New("connection not registered: " + connID)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping write a ping control frame.
// keepalive 跟 Push 共用同一把 per-conn lock，websocket 連線只容許一個 writer
func (r *ConnRegistry) Ping(connID string, deadline time.Time) error {
	r.mu.RLock()
	rc, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return errors.New("connection not registered: " + connID)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline)
}

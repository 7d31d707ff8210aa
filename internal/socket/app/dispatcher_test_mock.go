package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spoonbobo/talkact-sub002/internal/socket/domain"

	"github.com/stretchr/testify/mock"
)

// MockPresenceRepository Mock PresenceRepository
type MockPresenceRepository struct {
	mock.Mock
}

// Attach mock attach connection
func (m *MockPresenceRepository) Attach(ctx context.Context, userID, connID string) error {
	args := m.Called(ctx, userID, connID)
	return args.Error(0)
}

// Detach mock detach connection
func (m *MockPresenceRepository) Detach(ctx context.Context, userID, connID string) error {
	args := m.Called(ctx, userID, connID)
	return args.Error(0)
}

// ConnectionsOf mock live connection lookup
func (m *MockPresenceRepository) ConnectionsOf(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// Join mock join room
func (m *MockRoomRepository) Join(ctx context.Context, roomID, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

// Invite mock batched join
func (m *MockRoomRepository) Invite(ctx context.Context, roomID string, userIDs []string) error {
	args := m.Called(ctx, roomID, userIDs)
	return args.Error(0)
}

// Leave mock leave room
func (m *MockRoomRepository) Leave(ctx context.Context, roomID, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

// MembersOf mock member lookup
func (m *MockRoomRepository) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// RoomsOf mock room lookup
func (m *MockRoomRepository) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMailboxRepository Mock MailboxRepository
type MockMailboxRepository struct {
	mock.Mock
}

// Enqueue mock enqueue payload
func (m *MockMailboxRepository) Enqueue(ctx context.Context, roomID, userID string, payload []byte) error {
	args := m.Called(ctx, roomID, userID, payload)
	return args.Error(0)
}

// Backlog mock backlog read
func (m *MockMailboxRepository) Backlog(ctx context.Context, roomID, userID string) ([][]byte, error) {
	args := m.Called(ctx, roomID, userID)
	if args.Get(0) != nil {
		return args.Get(0).([][]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

// Clear mock queue clear
func (m *MockMailboxRepository) Clear(ctx context.Context, roomID, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

// MockArchiveRepository Mock ArchiveRepository
type MockArchiveRepository struct {
	mock.Mock
}

// SaveMessage mock archive call
func (m *MockArchiveRepository) SaveMessage(ctx context.Context, msg domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// fakeSocketConn 記錄所有寫入 frame 的假連線.
// 真的 websocket conn 不容許並發寫，所以這裡偵測有沒有兩個 writer 同時進來
type fakeSocketConn struct {
	mu       sync.Mutex
	frames   [][]byte
	controls int
	err      error

	writing int32 // 進行中的 writer 數，registry 鎖對了就恆為 0/1
	overlap int32
}

func (f *fakeSocketConn) enterWrite() {
	if !atomic.CompareAndSwapInt32(&f.writing, 0, 1) {
		atomic.StoreInt32(&f.overlap, 1)
	}
}

func (f *fakeSocketConn) leaveWrite() {
	atomic.StoreInt32(&f.writing, 0)
}

func (f *fakeSocketConn) WriteMessage(messageType int, data []byte) error {
	f.enterWrite()
	defer f.leaveWrite()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSocketConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.enterWrite()
	defer f.leaveWrite()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.controls++
	return nil
}

func (f *fakeSocketConn) sawConcurrentWrite() bool {
	return atomic.LoadInt32(&f.overlap) == 1
}

func (f *fakeSocketConn) controlFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.controls
}

func (f *fakeSocketConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnRegistry_RegisterPushUnregister(t *testing.T) {
	r := NewConnRegistry()
	conn := &fakeSocketConn{}

	r.Register("c1", conn)
	assert.Equal(t, 1, r.Len())

	assert.NoError(t, r.Push("c1", []byte("hello")))
	assert.Len(t, conn.received(), 1)

	r.Unregister("c1")
	assert.Equal(t, 0, r.Len())
	assert.Error(t, r.Push("c1", []byte("gone")))

	// unregister 二次也無害
	r.Unregister("c1")
}

func TestConnRegistry_PushWriteError(t *testing.T) {
	r := NewConnRegistry()
	r.Register("c1", &fakeSocketConn{err: errors.New("broken pipe")})
	assert.Error(t, r.Push("c1", []byte("x")))
}

// 同一條連線被多個 goroutine 並發推送時，寫入要序列化不噴資料競爭
func TestConnRegistry_ConcurrentPush(t *testing.T) {
	r := NewConnRegistry()
	conn := &fakeSocketConn{}
	r.Register("c1", conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Push("c1", []byte("frame"))
		}()
	}
	wg.Wait()

	assert.Len(t, conn.received(), 20)
	assert.False(t, conn.sawConcurrentWrite())
}

// keepalive ping 跟 fan-out push 同時打同一條連線: 兩種寫入都要走同一把鎖，
// 不能出現第二個 writer (真連線遇到會直接 panic)
func TestConnRegistry_PingSerializedWithPush(t *testing.T) {
	r := NewConnRegistry()
	conn := &fakeSocketConn{}
	r.Register("c1", conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Push("c1", []byte("frame"))
		}()
		go func() {
			defer wg.Done()
			_ = r.Ping("c1", time.Now().Add(time.Second))
		}()
	}
	wg.Wait()

	assert.False(t, conn.sawConcurrentWrite())
	assert.Len(t, conn.received(), 20)
	assert.Equal(t, 20, conn.controlFrames())

	r.Unregister("c1")
	assert.Error(t, r.Ping("c1", time.Now().Add(time.Second)))
}

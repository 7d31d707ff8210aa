package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spoonbobo/talkact-sub002/internal/socket/app"
	"github.com/spoonbobo/talkact-sub002/internal/socket/domain"
	"github.com/spoonbobo/talkact-sub002/internal/socket/repository"
	"github.com/spoonbobo/talkact-sub002/pkg/logger"
	testtool "github.com/spoonbobo/talkact-sub002/pkg/test_tool"
	"github.com/spoonbobo/talkact-sub002/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	m.Run()
}

func dialUser(t *testing.T, base, userID string) *gws.Conn {
	t.Helper()
	tok, err := token.GenerateJWT(userID, "user", "test")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	conn, _, err := gws.DefaultDialer.Dial(base+"/ws?auth="+tok, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket for %s: %v", userID, err)
	}
	return conn
}

func readResp(t *testing.T, conn *gws.Conn) domain.WSResponse {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var resp domain.WSResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("malformed frame %s: %v", data, err)
	}
	return resp
}

// readUntil 跳過不相干的 frame (例如自己的 echo)，等到符合條件的那一個
func readUntil(t *testing.T, conn *gws.Conn, pred func(domain.WSResponse) bool) domain.WSResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := readResp(t, conn)
		if pred(resp) {
			return resp
		}
	}
	t.Fatal("expected frame never arrived")
	return domain.WSResponse{}
}

func sendReq(t *testing.T, conn *gws.Conn, req domain.WSRequest) {
	t.Helper()
	b, _ := json.Marshal(req)
	if err := conn.WriteMessage(gws.TextMessage, b); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal(msg)
}

// 完整走一遍: 上線/加房/離線收件/重連回補/多裝置/通知/退房
func TestSocketServiceEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end to end test in short mode")
	}

	ctx := context.Background()

	// redis 容器
	container, host, port, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	redisClient := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port)})
	defer redisClient.Close()

	// 假的 system-of-record insert endpoint
	var archived int64
	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&archived, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer archiveSrv.Close()

	presenceRepo := repository.NewRedisPresenceRepository(redisClient)
	roomRepo := repository.NewRedisRoomRepository(redisClient)
	mailboxRepo := repository.NewRedisMailboxRepository(redisClient, 100)
	archiveRepo := repository.NewHTTPArchiveRepository(archiveSrv.URL, time.Second)

	conns := app.NewConnRegistry()
	dispatcher := app.NewDispatcher(presenceRepo, roomRepo, mailboxRepo, archiveRepo, conns, 2*time.Second)

	fiberApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(fiberApp, app.NewSocketHandler(dispatcher), app.NewNotifyHandler(dispatcher), redisClient)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = fiberApp.Listener(ln) }()
	defer func() { _ = fiberApp.Shutdown() }()

	base := "ws://" + ln.Addr().String()
	httpBase := "http://" + ln.Addr().String()

	// u1 上線並加入 r1
	u1 := dialUser(t, base, "u1")
	defer u1.Close()
	sendReq(t, u1, domain.WSRequest{Action: string(domain.JoinRoom), RoomID: "r1"})
	ack := readResp(t, u1)
	assert.True(t, ack.Success)

	// u2 上線、加入 r1、然後離線
	u2 := dialUser(t, base, "u2")
	sendReq(t, u2, domain.WSRequest{Action: string(domain.JoinRoom), RoomID: "r1"})
	assert.True(t, readResp(t, u2).Success)
	u2.Close()
	eventually(t, 5*time.Second, func() bool {
		n, err := redisClient.SCard(ctx, "chat:online:u2").Result()
		return err == nil && n == 0
	}, "u2 presence never cleared")

	// u1 發訊息: 自己 (在線成員) 收到 echo，u2 (離線) 進 mailbox
	sendReq(t, u1, domain.WSRequest{Action: string(domain.SendMessage), RoomID: "r1", Content: "hi"})
	push := readUntil(t, u1, func(r domain.WSResponse) bool {
		return r.Payload["content"] == "hi"
	})
	assert.Equal(t, "u1", push.Payload["sender_id"])

	eventually(t, 5*time.Second, func() bool {
		n, err := redisClient.LLen(ctx, "chat:mailbox:r1:u2").Result()
		return err == nil && n == 1
	}, "offline message never reached u2 mailbox")

	// u2 重連: 第一個 frame 就是積壓的 "hi"，mailbox 清空
	u2 = dialUser(t, base, "u2")
	defer u2.Close()
	replay := readResp(t, u2)
	assert.Equal(t, string(domain.SendMessage), replay.Action)
	assert.Equal(t, "hi", replay.Payload["content"])
	eventually(t, 5*time.Second, func() bool {
		n, err := redisClient.LLen(ctx, "chat:mailbox:r1:u2").Result()
		return err == nil && n == 0
	}, "u2 mailbox never cleared after replay")

	// u3 開兩個分頁，兩條連線都要收到 (多裝置 fan-out)
	u3a := dialUser(t, base, "u3")
	defer u3a.Close()
	sendReq(t, u3a, domain.WSRequest{Action: string(domain.JoinRoom), RoomID: "r1"})
	assert.True(t, readResp(t, u3a).Success)
	u3b := dialUser(t, base, "u3")
	defer u3b.Close()

	sendReq(t, u1, domain.WSRequest{Action: string(domain.SendMessage), RoomID: "r1", Content: "second"})
	for _, conn := range []*gws.Conn{u3a, u3b} {
		got := readUntil(t, conn, func(r domain.WSResponse) bool {
			return r.Payload["content"] == "second"
		})
		assert.Equal(t, string(domain.SendMessage), got.Action)
	}

	// websocket notification: receivers ∪ room members，u2 在線要收到
	sendReq(t, u1, domain.WSRequest{Action: string(domain.SendNotification), RoomID: "r1", Receivers: []string{"u9"}, Message: "meeting at 10"})
	note := readUntil(t, u2, func(r domain.WSResponse) bool {
		return r.Action == string(domain.SendNotification)
	})
	assert.Equal(t, "meeting at 10", note.Payload["message"])
	// u9 離線又不是成員: 不會留下任何 mailbox
	n, err := redisClient.Exists(ctx, "chat:mailbox:r1:u9").Result()
	assert.NoError(t, err)
	assert.Zero(t, n)

	// HTTP ingress: web application 不開 socket 也能發通知
	tok, err := token.GenerateJWT("backend", "admin", "test")
	assert.NoError(t, err)
	body, _ := json.Marshal(domain.Notification{Receivers: []string{"u2"}, Message: "from http"})
	resp, err := http.Post(httpBase+"/notify?auth="+tok, "application/json", bytes.NewReader(body))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	httpNote := readUntil(t, u2, func(r domain.WSResponse) bool {
		return r.Payload["message"] == "from http"
	})
	assert.Equal(t, string(domain.SendNotification), httpNote.Action)

	// u2 退房: 兩個方向的 membership 都要消失
	sendReq(t, u2, domain.WSRequest{Action: string(domain.QuitRoom), RoomID: "r1"})
	quitAck := readUntil(t, u2, func(r domain.WSResponse) bool {
		return r.Action == string(domain.QuitRoom)
	})
	assert.True(t, quitAck.Success)
	members, err := redisClient.SMembers(ctx, "chat:room:r1:members").Result()
	assert.NoError(t, err)
	assert.NotContains(t, members, "u2")
	rooms, err := redisClient.SMembers(ctx, "chat:user:u2:rooms").Result()
	assert.NoError(t, err)
	assert.Empty(t, rooms)

	// 兩則訊息都該送到 system-of-record
	eventually(t, 5*time.Second, func() bool {
		return atomic.LoadInt64(&archived) == 2
	}, "messages never archived")
}

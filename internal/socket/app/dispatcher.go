package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spoonbobo/talkact-sub002/internal/socket/domain"
	"github.com/spoonbobo/talkact-sub002/internal/socket/repository"
	errprocess "github.com/spoonbobo/talkact-sub002/pkg/err"
	"github.com/spoonbobo/talkact-sub002/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher 連線事件狀態機: connect 回補 mailbox、join/invite/quit 改 membership、
// message 對全房間 fan-out (離線進 mailbox)、notification 只發在線、disconnect 清 presence.
// 共享狀態全部在 redis，這裡只留 transient 的 socket handle
type Dispatcher struct {
	presence repository.PresenceRepository
	rooms    repository.RoomRepository
	mailbox  repository.MailboxRepository
	archive  repository.ArchiveRepository
	conns    *ConnRegistry

	storeTimeout time.Duration
}

// NewDispatcher create delivery dispatcher
func NewDispatcher(
	presence repository.PresenceRepository,
	rooms repository.RoomRepository,
	mailbox repository.MailboxRepository,
	archive repository.ArchiveRepository,
	conns *ConnRegistry,
	storeTimeout time.Duration,
) *Dispatcher {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Dispatcher{
		presence:     presence,
		rooms:        rooms,
		mailbox:      mailbox,
		archive:      archive,
		conns:        conns,
		storeTimeout: storeTimeout,
	}
}

// storeCtx 給每次 store 操作掛 timeout，避免慢 redis 卡住整條連線的 read loop
func (d *Dispatcher) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.storeTimeout)
}

// Connect register the socket, mark presence, then backfill every room's mailbox
// into this connection only. 單一 room 回補失敗只略過該房，其他照常
func (d *Dispatcher) Connect(ctx context.Context, userID, connID string, conn SocketConn) error {
	if userID == "" {
		return errprocess.Set("connect rejected: missing user identity")
	}

	d.conns.Register(connID, conn)

	sctx, cancel := d.storeCtx(ctx)
	defer cancel()
	if err := d.presence.Attach(sctx, userID, connID); err != nil {
		// 連線照常進行 (degraded): 本地 handle 在,只是 presence 查不到
		logger.Log.Error("presence attach failed",
			zap.String("userID", userID), zap.String("connID", connID), zap.Error(err))
	}

	rctx, cancel2 := d.storeCtx(ctx)
	defer cancel2()
	roomIDs, err := d.rooms.RoomsOf(rctx, userID)
	if err != nil {
		logger.Log.Error("rooms lookup failed, skip mailbox backfill",
			zap.String("userID", userID), zap.Error(err))
		return nil
	}

	for _, roomID := range roomIDs {
		d.deliverBacklog(ctx, roomID, userID, connID)
	}
	return nil
}

// deliverBacklog 讀出 (room, user) 的積壓、逐筆推給這條連線，推完才清 queue.
// 壞掉的單筆 payload 跳過不中斷; 推送途中失敗仍會清 (at-least-once 取捨)
func (d *Dispatcher) deliverBacklog(ctx context.Context, roomID, userID, connID string) {
	sctx, cancel := d.storeCtx(ctx)
	defer cancel()

	payloads, err := d.mailbox.Backlog(sctx, roomID, userID)
	if err != nil {
		logger.Log.Error("mailbox backlog read failed",
			zap.String("roomID", roomID), zap.String("userID", userID), zap.Error(err))
		return
	}
	if len(payloads) == 0 {
		return
	}

	for _, raw := range payloads {
		var msg domain.ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Log.Error("skip malformed mailbox entry",
				zap.String("roomID", roomID), zap.String("userID", userID), zap.Error(err))
			continue
		}
		if err := d.pushMessage(connID, msg); err != nil {
			logger.Log.Error("mailbox replay push failed",
				zap.String("connID", connID), zap.String("messageID", msg.ID), zap.Error(err))
		}
	}

	cctx, cancel2 := d.storeCtx(ctx)
	defer cancel2()
	if err := d.mailbox.Clear(cctx, roomID, userID); err != nil {
		logger.Log.Error("mailbox clear failed",
			zap.String("roomID", roomID), zap.String("userID", userID), zap.Error(err))
	}
}

// Disconnect drop the local handle and the presence entry.
// store 寫失敗只記 log — socket 反正已經沒了，room membership 不動
func (d *Dispatcher) Disconnect(ctx context.Context, userID, connID string) {
	d.conns.Unregister(connID)

	sctx, cancel := d.storeCtx(ctx)
	defer cancel()
	if err := d.presence.Detach(sctx, userID, connID); err != nil {
		logger.Log.Error("presence detach failed",
			zap.String("userID", userID), zap.String("connID", connID), zap.Error(err))
	}
}

// JoinRoom add the user to the room (both directions)
func (d *Dispatcher) JoinRoom(ctx context.Context, roomID, userID string) error {
	sctx, cancel := d.storeCtx(ctx)
	defer cancel()
	return d.rooms.Join(sctx, roomID, userID)
}

// InviteToRoom batched join, per-user failures logged independently by the repository
func (d *Dispatcher) InviteToRoom(ctx context.Context, roomID string, userIDs []string) error {
	sctx, cancel := d.storeCtx(ctx)
	defer cancel()
	return d.rooms.Invite(sctx, roomID, userIDs)
}

// QuitRoom remove the user from the room (both directions)
func (d *Dispatcher) QuitRoom(ctx context.Context, roomID, userID string) error {
	sctx, cancel := d.storeCtx(ctx)
	defer cancel()
	return d.rooms.Leave(sctx, roomID, userID)
}

// SendMessage fan the message out to every member of the room.
// 在線 member 推到他每一條連線 (多裝置)，離線 member 進 mailbox.
// 正本先 fire-and-forget 丟給 archive，失敗不影響即時派送
func (d *Dispatcher) SendMessage(ctx context.Context, roomID, senderID, content string) (string, error) {
	if roomID == "" {
		return "", errprocess.Set("message rejected: missing room_id")
	}

	msg := domain.ChatMessage{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}

	go func() {
		if err := d.archive.SaveMessage(context.Background(), msg); err != nil {
			logger.Log.Error("archive message failed",
				zap.String("messageID", msg.ID), zap.Error(err))
		}
	}()

	sctx, cancel := d.storeCtx(ctx)
	defer cancel()
	members, err := d.rooms.MembersOf(sctx, roomID)
	if err != nil {
		logger.Log.Error("members lookup failed",
			zap.String("roomID", roomID), zap.Error(err))
		return "", err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	for _, member := range members {
		d.deliverToMember(ctx, roomID, member, msg, raw)
	}
	return msg.ID, nil
}

// deliverToMember 單一 member 的派送，失敗只記 log 不影響其他 member
func (d *Dispatcher) deliverToMember(ctx context.Context, roomID, member string, msg domain.ChatMessage, raw []byte) {
	sctx, cancel := d.storeCtx(ctx)
	defer cancel()

	connIDs, err := d.presence.ConnectionsOf(sctx, member)
	if err != nil {
		logger.Log.Error("presence lookup failed, member skipped",
			zap.String("userID", member), zap.Error(err))
		return
	}

	if len(connIDs) == 0 {
		ectx, cancel2 := d.storeCtx(ctx)
		defer cancel2()
		if err := d.mailbox.Enqueue(ectx, roomID, member, raw); err != nil {
			logger.Log.Error("mailbox enqueue failed",
				zap.String("roomID", roomID), zap.String("userID", member), zap.Error(err))
		}
		return
	}

	for _, connID := range connIDs {
		if err := d.pushMessage(connID, msg); err != nil {
			logger.Log.Error("message push failed",
				zap.String("connID", connID), zap.String("messageID", msg.ID), zap.Error(err))
		}
	}
}

// Notify resolve recipients (explicit receivers ∪ room members) and push to
// online connections only. 離線的直接略過，notification 不進 mailbox
func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) error {
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().Unix()
	}

	recipients := d.resolveRecipients(ctx, n)
	for recipient := range recipients {
		sctx, cancel := d.storeCtx(ctx)
		connIDs, err := d.presence.ConnectionsOf(sctx, recipient)
		cancel()
		if err != nil {
			logger.Log.Error("presence lookup failed, recipient skipped",
				zap.String("userID", recipient), zap.Error(err))
			continue
		}
		for _, connID := range connIDs {
			if err := d.pushNotification(connID, n); err != nil {
				logger.Log.Error("notification push failed",
					zap.String("connID", connID), zap.Error(err))
			}
		}
	}
	return nil
}

// resolveRecipients 純計算: 明示 receivers 跟 room members 取聯集，set 自然去重
func (d *Dispatcher) resolveRecipients(ctx context.Context, n domain.Notification) map[string]struct{} {
	recipients := make(map[string]struct{}, len(n.Receivers))
	for _, r := range n.Receivers {
		recipients[r] = struct{}{}
	}

	if n.RoomID != "" {
		sctx, cancel := d.storeCtx(ctx)
		defer cancel()
		members, err := d.rooms.MembersOf(sctx, n.RoomID)
		if err != nil {
			logger.Log.Error("members lookup failed, explicit receivers only",
				zap.String("roomID", n.RoomID), zap.Error(err))
			return recipients
		}
		for _, m := range members {
			recipients[m] = struct{}{}
		}
	}
	return recipients
}

func (d *Dispatcher) pushMessage(connID string, msg domain.ChatMessage) error {
	resp := domain.WSResponse{
		Action:  string(domain.SendMessage),
		Success: true,
		Payload: map[string]interface{}{
			"id":        msg.ID,
			"room_id":   msg.RoomID,
			"sender_id": msg.SenderID,
			"content":   msg.Content,
			"timestamp": msg.Timestamp,
		},
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return d.conns.Push(connID, b)
}

func (d *Dispatcher) pushNotification(connID string, n domain.Notification) error {
	resp := domain.WSResponse{
		Action:  string(domain.SendNotification),
		Success: true,
		Payload: map[string]interface{}{
			"room_id":   n.RoomID,
			"sender_id": n.SenderID,
			"message":   n.Message,
			"timestamp": n.Timestamp,
		},
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return d.conns.Push(connID, b)
}

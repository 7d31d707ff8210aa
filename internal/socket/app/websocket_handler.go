package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spoonbobo/talkact-sub002/internal/socket/domain"
	"github.com/spoonbobo/talkact-sub002/pkg/logger"
	"github.com/spoonbobo/talkact-sub002/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SocketHandler websocket 連線的進入點，事件交給 dispatcher
type SocketHandler struct {
	dispatcher *Dispatcher
}

// NewSocketHandler create SocketHandler
func NewSocketHandler(dispatcher *Dispatcher) *SocketHandler {
	return &SocketHandler{dispatcher: dispatcher}
}

// HandleConnection 一條 websocket 連線的完整生命週期:
// 取出 token 裡的 user id -> attach presence + 回補 mailbox -> read loop -> detach
func (h *SocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	tokenUser := conn.Locals(middlewares.TokenUserID)
	userID, _ := tokenUser.(string)

	// handshake 沒帶 user identity 直接拒絕，不建 presence
	if userID == "" {
		logger.Log.Warn("websocket rejected: missing user identity", zap.String("remote", conn.RemoteAddr().String()))
		conn.Close()
		return
	}

	// reconnect 就是一條全新 connection，連續性靠 redis 的 membership + mailbox
	connID := uuid.New().String()
	logger.Log.Info("websocket connected",
		zap.String("userID", userID), zap.String("connID", connID))

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		cancel()
		h.dispatcher.Disconnect(context.Background(), userID, connID)
		logger.Log.Info("websocket closed",
			zap.String("userID", userID), zap.String("connID", connID))
		conn.Close()
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("websocket close frame:", conn.RemoteAddr())
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		return nil
	})

	//client發出ping,手動回pong
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	if err := h.dispatcher.Connect(ctx, userID, connID, conn); err != nil {
		logger.Log.Errorf("websocket connect rejected:", err)
		return
	}

	// 定期發送 ping，走 registry 的 per-conn lock 才不會跟 fan-out 並發寫同一條 conn
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := h.dispatcher.conns.Ping(connID, time.Now().Add(time.Second)); err != nil {
					logger.Log.Errorf("ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		h.execWebsocketAction(ctx, connID, userID, mt, message)
	}
}

func (h *SocketHandler) execWebsocketAction(ctx context.Context, connID, userID string, mt int, msg []byte) {
	switch mt {
	case websocket.TextMessage:
		h.textMessageAction(ctx, connID, userID, msg)
	default:
		h.sendError(connID, "unsupported message type")
	}
}

// textMessageAction 解析一個 inbound frame 並派給 dispatcher.
// 單一 frame 壞掉只回 error response，連線照常活著 (fail closed per payload)
func (h *SocketHandler) textMessageAction(ctx context.Context, connID, userID string, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		h.sendError(connID, "malformed payload")
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	switch req.Action {
	//加入房間
	case string(domain.JoinRoom):
		if req.RoomID == "" {
			resp.Error = "room_id required"
			break
		}
		if err := h.dispatcher.JoinRoom(ctx, req.RoomID, userID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	//邀請多個 user 進房，best-effort
	case string(domain.InviteToRoom):
		if req.RoomID == "" || len(req.UserIDs) == 0 {
			resp.Error = "room_id and user_ids required"
			break
		}
		if err := h.dispatcher.InviteToRoom(ctx, req.RoomID, req.UserIDs); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	//退出房間 (membership 移除，presence 不動)
	case string(domain.QuitRoom):
		if req.RoomID == "" {
			resp.Error = "room_id required"
			break
		}
		if err := h.dispatcher.QuitRoom(ctx, req.RoomID, userID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	//傳送訊息: 在線成員直接推，離線進 mailbox，正本丟 archive
	case string(domain.SendMessage):
		msgID, err := h.dispatcher.SendMessage(ctx, req.RoomID, userID, req.Content)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = msgID
		}

	//通知: 明示 receivers ∪ room members，只發在線
	case string(domain.SendNotification):
		n := domain.Notification{
			RoomID:    req.RoomID,
			Receivers: req.Receivers,
			SenderID:  userID,
			Message:   req.Message,
		}
		if err := h.dispatcher.Notify(ctx, n); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	default:
		h.sendError(connID, "unknown action")
		return
	}

	if resp.Error != "" {
		logger.Log.Error("websocket action failed",
			zap.String("userID", userID),
			zap.String("action", req.Action),
			zap.String("err", resp.Error))
	}
	h.sendResponse(connID, resp)
}

// sendResponse - 回 JSON 給前端，走 registry 才不會跟 fan-out 並發寫同一條 conn
func (h *SocketHandler) sendResponse(connID string, resp domain.WSResponse) {
	b, _ := json.Marshal(resp)
	if err := h.dispatcher.conns.Push(connID, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}

func (h *SocketHandler) sendError(connID, errorMsg string) {
	h.sendResponse(connID, domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{"error": errorMsg},
	})
}

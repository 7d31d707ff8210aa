package domain

// ChatMessage 表示一則聊天訊息，透過 dispatcher 流轉 (也會序列化進 mailbox)
type ChatMessage struct {
	ID        string `json:"id"` // UUID
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Notification 通知訊息，只發給在線的 user，不進 mailbox
type Notification struct {
	RoomID    string   `json:"room_id,omitempty"`
	Receivers []string `json:"receivers,omitempty"`
	SenderID  string   `json:"sender_id,omitempty"`
	Message   string   `json:"message"`
	Timestamp int64    `json:"timestamp"`
}

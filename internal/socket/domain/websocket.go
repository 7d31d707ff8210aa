package domain

// Action websocket request action
type Action string

const (
	// JoinRoom websocket action join_room
	JoinRoom Action = "join_room"
	// InviteToRoom websocket action invite_to_room
	InviteToRoom Action = "invite_to_room"
	// QuitRoom websocket action quit_room
	QuitRoom Action = "quit_room"

	// SendMessage websocket action message, also the server push action
	SendMessage Action = "message"
	// SendNotification websocket action notification, also the server push action
	SendNotification Action = "notification"
)

// WSRequest websocket Request
type WSRequest struct {
	Action    string   `json:"action"`
	RoomID    string   `json:"room_id"`
	UserIDs   []string `json:"user_ids"`
	Receivers []string `json:"receivers"`
	Content   string   `json:"content"`
	Message   string   `json:"message"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

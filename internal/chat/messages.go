package chat

import "github.com/typewire/typewire/internal/message"

const maxBodyLen = 4096

// JoinRoom subscribes the connection to a room.
type JoinRoom struct {
	Room string `json:"room"`
}

func (JoinRoom) Action() string { return "join_room" }

func (m *JoinRoom) Validate() error {
	if m.Room == "" {
		return message.Invalid("room", "must not be empty")
	}
	return nil
}

// LeaveRoom unsubscribes the connection from a room.
type LeaveRoom struct {
	Room string `json:"room"`
}

func (LeaveRoom) Action() string { return "leave_room" }

func (m *LeaveRoom) Validate() error {
	if m.Room == "" {
		return message.Invalid("room", "must not be empty")
	}
	return nil
}

// SendChat posts a line into a room the sender has joined.
type SendChat struct {
	Room string `json:"room"`
	Body string `json:"body"`
}

func (SendChat) Action() string { return "send_chat" }

func (m *SendChat) Validate() error {
	var ve message.ValidationError
	if m.Room == "" {
		ve.Fields = append(ve.Fields, message.FieldError{Field: "room", Message: "must not be empty"})
	}
	if m.Body == "" {
		ve.Fields = append(ve.Fields, message.FieldError{Field: "body", Message: "must not be empty"})
	}
	if len(m.Body) > maxBodyLen {
		ve.Fields = append(ve.Fields, message.FieldError{Field: "body", Message: "too long"})
	}
	if len(ve.Fields) > 0 {
		return &ve
	}
	return nil
}

// ListRooms asks for the configured room catalogue.
type ListRooms struct{}

func (ListRooms) Action() string { return "list_rooms" }

// RoomJoined confirms a join and reports current membership.
type RoomJoined struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
}

func (RoomJoined) Action() string { return "room_joined" }

// RoomLeft confirms a leave.
type RoomLeft struct {
	Room string `json:"room"`
}

func (RoomLeft) Action() string { return "room_left" }

// ChatPosted is the fan-out form of SendChat, delivered to every member of
// the room including the author.
type ChatPosted struct {
	Room       string `json:"room"`
	Body       string `json:"body"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
}

func (ChatPosted) Action() string { return "chat_posted" }

// RoomList answers ListRooms.
type RoomList struct {
	Rooms []string `json:"rooms"`
}

func (RoomList) Action() string { return "room_list" }

// RoomNotice is pushed when operational code injects a room_notice event
// (deploy warnings, moderation notes).
type RoomNotice struct {
	Room string `json:"room"`
	Body string `json:"body"`
}

func (RoomNotice) Action() string { return "room_notice" }

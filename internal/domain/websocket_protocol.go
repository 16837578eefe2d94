package domain

import (
	"github.com/coder/websocket"
)

// Frame types of the relay's JSON text protocol.
const (
	FrameTypeJoin           = "join"
	FrameTypeJoinRequest    = "join_request"
	FrameTypeChat           = "chat"
	FrameTypeSystem         = "system"
	FrameTypeApprovalStatus = "approval_status"

	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"

	StatusGoingAway    websocket.StatusCode = 1001
	StatusJoinRejected websocket.StatusCode = 4403
)

// Frame is implemented by every outbound frame; Kind is used for metric labels.
type Frame interface {
	Kind() string
}

// InboundFrame is the union of the structured client frames.
// join/join_request carry Name, chat carries Message.
type InboundFrame struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsJoin reports whether the frame asks to enter the chat.
func (f InboundFrame) IsJoin() bool {
	return f.Type == FrameTypeJoin || f.Type == FrameTypeJoinRequest
}

// SystemFrame is a relay generated notice such as a membership change.
type SystemFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (SystemFrame) Kind() string { return FrameTypeSystem }

// ChatFrame is a chat line tagged with the sender's display name.
type ChatFrame struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func (ChatFrame) Kind() string { return FrameTypeChat }

// ApprovalStatusFrame tells a requester how the operator decided.
type ApprovalStatusFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Name   string `json:"name,omitempty"`
}

func (ApprovalStatusFrame) Kind() string { return FrameTypeApprovalStatus }

func NewSystemFrame(message string) SystemFrame {
	return SystemFrame{Type: FrameTypeSystem, Message: message}
}

func NewChatFrame(sender, message string) ChatFrame {
	return ChatFrame{Type: FrameTypeChat, Sender: sender, Message: message}
}

// NewApprovedFrame is sent directly to a requester whose join was accepted.
func NewApprovedFrame(name string) ApprovalStatusFrame {
	return ApprovalStatusFrame{Type: FrameTypeApprovalStatus, Status: ApprovalStatusApproved, Name: name}
}

// NewRejectedFrame is sent directly to a requester whose join was rejected or expired.
func NewRejectedFrame() ApprovalStatusFrame {
	return ApprovalStatusFrame{Type: FrameTypeApprovalStatus, Status: ApprovalStatusRejected}
}

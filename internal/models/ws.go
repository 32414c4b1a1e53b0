package models

// WSFrame is the envelope for every websocket message in both directions.
type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client frame payloads.

type StartPollRequest struct {
	DraftID string     `json:"draftId,omitempty"`
	Draft   *PollDraft `json:"draft,omitempty"`
}

// Submission is a member's answer. Choice types use Choices, free response uses Text.
type Submission struct {
	Choices []int  `json:"choices,omitempty"`
	Text    string `json:"text,omitempty"`
}

type EndPollRequest struct {
	Save bool `json:"save"`
}

type DeletePollRequest struct {
	PollID string `json:"pollId"`
}

type EndSessionRequest struct {
	Save bool `json:"save"`
}

// Server frame payloads.

type PollEndedNotice struct {
	PollID string `json:"pollId,omitempty"`
	Saved  bool   `json:"saved"`
}

type PollDeletedNotice struct {
	PollID string `json:"pollId,omitempty"`
	Live   bool   `json:"live"`
}

type SessionClosedNotice struct {
	GroupID string `json:"groupId"`
	Reason  string `json:"reason"`
}

type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionEvent is published on the shared event bus when a session or poll
// changes lifecycle.
type SessionEvent struct {
	Type       string `json:"type"`
	GroupID    string `json:"groupId"`
	Code       string `json:"code,omitempty"`
	PollID     string `json:"pollId,omitempty"`
	Save       bool   `json:"save,omitempty"`
	InstanceID string `json:"instanceId"`
	Timestamp  int64  `json:"timestamp"`
}

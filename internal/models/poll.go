package models

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
)

type PollState string

const (
	PollLive  PollState = "live"
	PollEnded PollState = "ended"
)

type AnswerChoice struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// MemberChoice is an AnswerChoice as a member may see it. Count is only set
// once results are visible to members.
type MemberChoice struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Count *int   `json:"count,omitempty"`
}

// Poll is an ended poll as stored by the poll repository.
type Poll struct {
	ID            string                                `gorm:"primaryKey;size:36" json:"id"`
	GroupID       string                                `gorm:"index;not null" json:"groupId"`
	Text          string                                `json:"text"`
	Type          QuestionType                          `json:"type"`
	State         PollState                             `json:"state"`
	CorrectAnswer *int                                  `json:"correctAnswer,omitempty"`
	AnswerChoices datatypes.JSONSlice[AnswerChoice]     `json:"answerChoices"`
	Answers       datatypes.JSONType[map[string][]int] `json:"answers"`
	Shared        bool                                  `json:"shared"`
	CreatedAt     time.Time                             `json:"createdAt"`
	UpdatedAt     time.Time                             `json:"updatedAt"`
}

// AdminPollView carries counts and every user's selection.
type AdminPollView struct {
	ID            string           `json:"id,omitempty"`
	Text          string           `json:"text"`
	Type          QuestionType     `json:"type"`
	State         PollState        `json:"state"`
	AnswerChoices []AnswerChoice   `json:"answerChoices"`
	CorrectAnswer *int             `json:"correctAnswer,omitempty"`
	Shared        bool             `json:"shared"`
	Answers       map[string][]int `json:"answers"`
}

// MemberPollView carries only the requesting member's own selection.
type MemberPollView struct {
	ID               string         `json:"id,omitempty"`
	Text             string         `json:"text"`
	Type             QuestionType   `json:"type"`
	State            PollState      `json:"state"`
	AnswerChoices    []MemberChoice `json:"answerChoices"`
	CorrectAnswer    *int           `json:"correctAnswer,omitempty"`
	SubmittedAnswers []int          `json:"submittedAnswers"`
}

// ResultsVisible reports whether members may see counts.
func ResultsVisible(state PollState, shared bool) bool {
	return state == PollEnded && shared
}

// MemberChoices projects choices for a member whose own selection is own.
// Free-response choices are texts written by other members, so only the
// member's own entries are listed until results are visible.
func MemberChoices(choices []AnswerChoice, qtype QuestionType, state PollState, shared bool, own []int) []MemberChoice {
	visible := ResultsVisible(state, shared)
	out := make([]MemberChoice, 0, len(choices))
	for _, c := range choices {
		if qtype == FreeResponse && !visible && !lo.Contains(own, c.Index) {
			continue
		}
		mc := MemberChoice{Index: c.Index, Text: c.Text}
		if visible {
			count := c.Count
			mc.Count = &count
		}
		out = append(out, mc)
	}
	return out
}

func (p *Poll) AdminView() AdminPollView {
	answers := make(map[string][]int, len(p.Answers.Data()))
	for user, sel := range p.Answers.Data() {
		answers[user] = append([]int{}, sel...)
	}
	return AdminPollView{
		ID:            p.ID,
		Text:          p.Text,
		Type:          p.Type,
		State:         p.State,
		AnswerChoices: append([]AnswerChoice{}, p.AnswerChoices...),
		CorrectAnswer: p.CorrectAnswer,
		Shared:        p.Shared,
		Answers:       answers,
	}
}

func (p *Poll) MemberView(userID string) MemberPollView {
	own := append([]int{}, p.Answers.Data()[userID]...)
	view := MemberPollView{
		ID:               p.ID,
		Text:             p.Text,
		Type:             p.Type,
		State:            p.State,
		AnswerChoices:    MemberChoices(p.AnswerChoices, p.Type, p.State, p.Shared, own),
		SubmittedAnswers: own,
	}
	if p.State == PollEnded {
		view.CorrectAnswer = p.CorrectAnswer
	}
	return view
}

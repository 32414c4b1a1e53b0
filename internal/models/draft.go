package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiChoice  QuestionType = "multi_choice"
	FreeResponse QuestionType = "free_response"
)

// Objective reports whether the type has fixed choices and may carry a correct answer.
func (q QuestionType) Objective() bool {
	return q == SingleChoice || q == MultiChoice
}

var (
	ErrInvalidDraft = errors.New("invalid poll draft")

	validate = validator.New()
)

// PollDraft is a question ready to be started in a group.
type PollDraft struct {
	Text          string       `json:"text" yaml:"text" validate:"required,max=1024"`
	Options       []string     `json:"options" yaml:"options" validate:"max=26,dive,required,max=256"`
	CorrectAnswer *int         `json:"correctAnswer,omitempty" yaml:"correctAnswer,omitempty"`
	Type          QuestionType `json:"type" yaml:"type" validate:"required,oneof=single_choice multi_choice free_response"`
}

// Validate checks field constraints and the rules tying options and the
// correct answer to the question type.
func (d PollDraft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidDraft)
	}
	if d.Type.Objective() {
		if len(d.Options) < 2 {
			return fmt.Errorf("%w: %s needs at least two options", ErrInvalidDraft, d.Type)
		}
		if d.CorrectAnswer != nil && (*d.CorrectAnswer < 0 || *d.CorrectAnswer >= len(d.Options)) {
			return fmt.Errorf("%w: correct answer %d out of range", ErrInvalidDraft, *d.CorrectAnswer)
		}
		return nil
	}
	if d.CorrectAnswer != nil {
		return fmt.Errorf("%w: free response cannot have a correct answer", ErrInvalidDraft)
	}
	return nil
}

// Draft is a PollDraft saved by an admin for later use.
type Draft struct {
	ID            string                      `gorm:"primaryKey;size:36" json:"id"`
	OwnerID       string                      `gorm:"index;not null" json:"ownerId"`
	Text          string                      `json:"text"`
	Options       datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswer *int                        `json:"correctAnswer,omitempty"`
	Type          QuestionType                `json:"type"`
	CreatedAt     time.Time                   `json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

func (d *Draft) PollDraft() PollDraft {
	return PollDraft{
		Text:          d.Text,
		Options:       append([]string(nil), d.Options...),
		CorrectAnswer: d.CorrectAnswer,
		Type:          d.Type,
	}
}

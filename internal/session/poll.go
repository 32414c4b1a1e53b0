package session

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/cuappdev/clicker-backend/internal/models"
)

// LivePoll is the in-memory state of the poll currently running in a group.
// It is owned by a GroupSession and never shared outside it.
type LivePoll struct {
	text    string
	qtype   models.QuestionType
	state   models.PollState
	choices []models.AnswerChoice
	correct *int
	answers map[string][]int
	shared  bool
}

func newLivePoll(d models.PollDraft) *LivePoll {
	p := &LivePoll{
		text:    d.Text,
		qtype:   d.Type,
		state:   models.PollLive,
		choices: make([]models.AnswerChoice, 0, len(d.Options)),
		answers: make(map[string][]int),
	}
	if d.Type.Objective() {
		for i, opt := range d.Options {
			p.choices = append(p.choices, models.AnswerChoice{Index: i, Text: opt})
		}
		if d.CorrectAnswer != nil {
			c := *d.CorrectAnswer
			p.correct = &c
		}
	}
	return p
}

// resolve turns a submission into a selection set. For free response it also
// returns the text of a choice that must be appended before the selection is
// applied.
func (p *LivePoll) resolve(sub models.Submission) (sel []int, appendText string, err error) {
	if p.qtype == models.FreeResponse {
		text := strings.TrimSpace(sub.Text)
		if text == "" {
			return nil, "", fmt.Errorf("%w: empty response", ErrInvalidChoice)
		}
		if c, ok := lo.Find(p.choices, func(c models.AnswerChoice) bool { return c.Text == text }); ok {
			return []int{c.Index}, "", nil
		}
		return []int{len(p.choices)}, text, nil
	}

	switch {
	case len(sub.Choices) == 0:
		return nil, "", fmt.Errorf("%w: no choice selected", ErrInvalidChoice)
	case p.qtype == models.SingleChoice && len(sub.Choices) != 1:
		return nil, "", fmt.Errorf("%w: single choice takes exactly one selection", ErrInvalidChoice)
	case len(lo.Uniq(sub.Choices)) != len(sub.Choices):
		return nil, "", fmt.Errorf("%w: duplicate selection", ErrInvalidChoice)
	}
	for _, i := range sub.Choices {
		if i < 0 || i >= len(p.choices) {
			return nil, "", fmt.Errorf("%w: index %d out of range", ErrInvalidChoice, i)
		}
	}
	return append([]int(nil), sub.Choices...), "", nil
}

// reconcile replaces userID's selection with next, adjusting counts by the
// difference between the old and new sets. A decrement at zero is clamped and
// reported.
func (p *LivePoll) reconcile(userID string, next []int) error {
	removed, added := lo.Difference(p.answers[userID], next)

	var err error
	for _, i := range removed {
		if p.choices[i].Count == 0 {
			err = fmt.Errorf("%w: choice %d, user %s", errTallyUnderflow, i, userID)
			continue
		}
		p.choices[i].Count--
	}
	for _, i := range added {
		p.choices[i].Count++
	}
	p.answers[userID] = next
	return err
}

// submit validates sub and applies it as userID's current selection. An
// errTallyUnderflow result means the selection was applied but a count had
// to be clamped.
func (p *LivePoll) submit(userID string, sub models.Submission) error {
	if p.state != models.PollLive {
		return fmt.Errorf("%w: poll is %s", ErrInvalidState, p.state)
	}
	sel, appendText, err := p.resolve(sub)
	if err != nil {
		return err
	}
	if appendText != "" {
		p.choices = append(p.choices, models.AnswerChoice{Index: len(p.choices), Text: appendText})
	}
	return p.reconcile(userID, sel)
}

func (p *LivePoll) adminView() models.AdminPollView {
	answers := make(map[string][]int, len(p.answers))
	for user, sel := range p.answers {
		answers[user] = append([]int{}, sel...)
	}
	var correct *int
	if p.correct != nil {
		c := *p.correct
		correct = &c
	}
	return models.AdminPollView{
		Text:          p.text,
		Type:          p.qtype,
		State:         p.state,
		AnswerChoices: append([]models.AnswerChoice{}, p.choices...),
		CorrectAnswer: correct,
		Shared:        p.shared,
		Answers:       answers,
	}
}

func (p *LivePoll) memberView(userID string) models.MemberPollView {
	own := append([]int{}, p.answers[userID]...)
	view := models.MemberPollView{
		Text:             p.text,
		Type:             p.qtype,
		State:            p.state,
		AnswerChoices:    models.MemberChoices(p.choices, p.qtype, p.state, p.shared, own),
		SubmittedAnswers: own,
	}
	if p.state == models.PollEnded && p.correct != nil {
		c := *p.correct
		view.CorrectAnswer = &c
	}
	return view
}

// snapshot returns the poll as it will be stored once ended.
func (p *LivePoll) snapshot(groupID string) models.Poll {
	v := p.adminView()
	return models.Poll{
		GroupID:       groupID,
		Text:          v.Text,
		Type:          v.Type,
		State:         models.PollEnded,
		CorrectAnswer: v.CorrectAnswer,
		AnswerChoices: datatypes.JSONSlice[models.AnswerChoice](v.AnswerChoices),
		Answers:       datatypes.NewJSONType(v.Answers),
		Shared:        v.Shared,
	}
}

func (p *LivePoll) answerCount() int { return len(p.answers) }

package session

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuappdev/clicker-backend/internal/models"
)

func singleChoiceDraft(options ...string) models.PollDraft {
	return models.PollDraft{Text: "Pick one", Options: options, Type: models.SingleChoice}
}

func counts(p *LivePoll) []int {
	return lo.Map(p.choices, func(c models.AnswerChoice, _ int) int { return c.Count })
}

// assertTallies checks every count equals the number of users selecting it.
func assertTallies(t *testing.T, p *LivePoll) {
	t.Helper()
	for _, c := range p.choices {
		want := lo.CountBy(lo.Values(p.answers), func(sel []int) bool { return lo.Contains(sel, c.Index) })
		require.Equalf(t, want, c.Count, "choice %d", c.Index)
	}
}

func TestLivePoll_ChangeAnswerMovesOneVote(t *testing.T) {
	p := newLivePoll(singleChoiceDraft("A", "B"))

	require.NoError(t, p.submit("u1", models.Submission{Choices: []int{0}}))
	assert.Equal(t, []int{1, 0}, counts(p))

	require.NoError(t, p.submit("u1", models.Submission{Choices: []int{1}}))
	assert.Equal(t, []int{0, 1}, counts(p))

	require.NoError(t, p.submit("u2", models.Submission{Choices: []int{1}}))
	assert.Equal(t, []int{0, 2}, counts(p))
	assertTallies(t, p)
}

func TestLivePoll_IdenticalResubmissionKeepsCounts(t *testing.T) {
	p := newLivePoll(models.PollDraft{Text: "Pick some", Options: []string{"A", "B", "C"}, Type: models.MultiChoice})

	require.NoError(t, p.submit("u1", models.Submission{Choices: []int{0, 2}}))
	before := counts(p)
	require.NoError(t, p.submit("u1", models.Submission{Choices: []int{0, 2}}))
	require.NoError(t, p.submit("u1", models.Submission{Choices: []int{2, 0}}))
	assert.Equal(t, before, counts(p))
}

func TestLivePoll_RandomSubmissionsKeepTalliesExact(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := newLivePoll(models.PollDraft{Text: "Pick some", Options: []string{"A", "B", "C", "D", "E"}, Type: models.MultiChoice})
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}

	for i := 0; i < 500; i++ {
		sel := lo.Filter([]int{0, 1, 2, 3, 4}, func(int, int) bool { return rng.Intn(2) == 0 })
		if len(sel) == 0 {
			sel = []int{rng.Intn(5)}
		}
		rng.Shuffle(len(sel), func(a, b int) { sel[a], sel[b] = sel[b], sel[a] })
		require.NoError(t, p.submit(users[rng.Intn(len(users))], models.Submission{Choices: sel}))
		assertTallies(t, p)
	}
}

func TestLivePoll_UnderflowIsClampedAndReported(t *testing.T) {
	p := newLivePoll(singleChoiceDraft("A", "B"))
	require.NoError(t, p.submit("u1", models.Submission{Choices: []int{0}}))
	p.choices[0].Count = 0

	err := p.submit("u1", models.Submission{Choices: []int{1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errTallyUnderflow))
	assert.Equal(t, []int{0, 1}, counts(p))
	assert.Equal(t, []int{1}, p.answers["u1"])
}

func TestLivePoll_RejectsMalformedSubmissions(t *testing.T) {
	single := newLivePoll(singleChoiceDraft("A", "B"))
	multi := newLivePoll(models.PollDraft{Text: "q", Options: []string{"A", "B"}, Type: models.MultiChoice})

	cases := []struct {
		name string
		poll *LivePoll
		sub  models.Submission
	}{
		{"empty", single, models.Submission{}},
		{"two on single", single, models.Submission{Choices: []int{0, 1}}},
		{"out of range", single, models.Submission{Choices: []int{2}}},
		{"negative", multi, models.Submission{Choices: []int{-1}}},
		{"duplicate", multi, models.Submission{Choices: []int{1, 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.poll.submit("u1", tc.sub)
			assert.ErrorIs(t, err, ErrInvalidChoice)
			assert.NotContains(t, tc.poll.answers, "u1")
		})
	}
}

func TestLivePoll_FreeResponseGroupsIdenticalText(t *testing.T) {
	p := newLivePoll(models.PollDraft{Text: "Say something", Type: models.FreeResponse})

	require.NoError(t, p.submit("u1", models.Submission{Text: "hello"}))
	require.NoError(t, p.submit("u2", models.Submission{Text: "  hello "}))
	require.NoError(t, p.submit("u3", models.Submission{Text: "bye"}))
	assert.Equal(t, []int{2, 1}, counts(p))

	require.NoError(t, p.submit("u1", models.Submission{Text: "bye"}))
	assert.Equal(t, []int{1, 2}, counts(p))
	assertTallies(t, p)

	assert.ErrorIs(t, p.submit("u4", models.Submission{Text: "   "}), ErrInvalidChoice)
}

func TestLivePoll_SubmitAfterStopIsInvalidState(t *testing.T) {
	p := newLivePoll(singleChoiceDraft("A", "B"))
	p.state = models.PollEnded
	assert.ErrorIs(t, p.submit("u1", models.Submission{Choices: []int{0}}), ErrInvalidState)
}

func TestLivePoll_SnapshotIsEndedCopy(t *testing.T) {
	correct := 1
	p := newLivePoll(models.PollDraft{Text: "q", Options: []string{"A", "B"}, CorrectAnswer: &correct, Type: models.SingleChoice})
	require.NoError(t, p.submit("u1", models.Submission{Choices: []int{1}}))

	snap := p.snapshot("g1")
	assert.Equal(t, "g1", snap.GroupID)
	assert.Equal(t, models.PollEnded, snap.State)
	assert.Equal(t, 1, *snap.CorrectAnswer)
	assert.Equal(t, []int{1}, snap.Answers.Data()["u1"])

	require.NoError(t, p.submit("u2", models.Submission{Choices: []int{1}}))
	assert.Equal(t, 1, snap.AnswerChoices[1].Count)
}

package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuappdev/clicker-backend/internal/models"
)

var ErrPollNotFound = errors.New("poll not found")

// PollRepository stores ended polls.
type PollRepository struct {
	DB *gorm.DB
}

// Save stores poll under a new id and returns it.
func (r *PollRepository) Save(ctx context.Context, poll models.Poll) (string, error) {
	poll.ID = uuid.NewString()
	poll.State = models.PollEnded
	if err := r.DB.WithContext(ctx).Create(&poll).Error; err != nil {
		return "", err
	}
	return poll.ID, nil
}

func (r *PollRepository) Get(ctx context.Context, pollID string) (*models.Poll, error) {
	var poll models.Poll
	err := r.DB.WithContext(ctx).First(&poll, "id = ?", pollID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

func (r *PollRepository) Delete(ctx context.Context, pollID string) error {
	result := r.DB.WithContext(ctx).Delete(&models.Poll{}, "id = ?", pollID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPollNotFound
	}
	return nil
}

// LoadEndedPolls returns the group's ended polls, oldest first.
func (r *PollRepository) LoadEndedPolls(ctx context.Context, groupID string) ([]models.Poll, error) {
	polls := []models.Poll{}
	err := r.DB.WithContext(ctx).
		Where("group_id = ? AND state = ?", groupID, models.PollEnded).
		Order("created_at ASC").
		Find(&polls).Error
	return polls, err
}

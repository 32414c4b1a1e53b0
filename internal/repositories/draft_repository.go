package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuappdev/clicker-backend/internal/models"
)

var ErrDraftNotFound = errors.New("draft not found")

type DraftRepository struct {
	DB *gorm.DB
}

func newDraft(ownerID string, d models.PollDraft) models.Draft {
	return models.Draft{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Text:          d.Text,
		Options:       d.Options,
		CorrectAnswer: d.CorrectAnswer,
		Type:          d.Type,
	}
}

func (r *DraftRepository) Create(ctx context.Context, ownerID string, d models.PollDraft) (*models.Draft, error) {
	draft := newDraft(ownerID, d)
	if err := r.DB.WithContext(ctx).Create(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

// CreateMany stores all drafts or none of them.
func (r *DraftRepository) CreateMany(ctx context.Context, ownerID string, drafts []models.PollDraft) ([]models.Draft, error) {
	out := make([]models.Draft, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, newDraft(ownerID, d))
	}
	if len(out) == 0 {
		return out, nil
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DraftRepository) Get(ctx context.Context, id string) (*models.Draft, error) {
	var draft models.Draft
	err := r.DB.WithContext(ctx).First(&draft, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *DraftRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Draft, error) {
	drafts := []models.Draft{}
	err := r.DB.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&drafts).Error
	return drafts, err
}

// Delete removes a draft only if ownerID owns it.
func (r *DraftRepository) Delete(ctx context.Context, id, ownerID string) error {
	result := r.DB.WithContext(ctx).Delete(&models.Draft{}, "id = ? AND owner_id = ?", id, ownerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDraftNotFound
	}
	return nil
}

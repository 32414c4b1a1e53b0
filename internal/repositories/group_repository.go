package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cuappdev/clicker-backend/internal/models"
	"github.com/cuappdev/clicker-backend/internal/utils"
)

const (
	codeLength   = 6
	codeAttempts = 10
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrNoFreeCode    = errors.New("could not allocate a unique group code")
)

type GroupRepository struct {
	DB *gorm.DB

	// newCode is swapped in tests to force collisions.
	newCode func() string
}

func (r *GroupRepository) code() string {
	if r.newCode != nil {
		return r.newCode()
	}
	return utils.RandomCode(codeLength)
}

// Create stores a new group owned by adminID under a join code no other group uses.
func (r *GroupRepository) Create(ctx context.Context, name, adminID string) (*models.Group, error) {
	db := r.DB.WithContext(ctx)
	for i := 0; i < codeAttempts; i++ {
		code := r.code()
		var taken int64
		if err := db.Model(&models.Group{}).Where("code = ?", code).Count(&taken).Error; err != nil {
			return nil, err
		}
		if taken > 0 {
			continue
		}
		group := &models.Group{
			ID:      uuid.NewString(),
			Name:    name,
			Code:    code,
			Admins:  datatypes.JSONSlice[string]{adminID},
			Members: datatypes.JSONSlice[string]{},
		}
		if err := db.Create(group).Error; err != nil {
			return nil, err
		}
		return group, nil
	}
	return nil, ErrNoFreeCode
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.Group, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GroupRepository) GetByCode(ctx context.Context, code string) (*models.Group, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *GroupRepository) first(ctx context.Context, query string, arg string) (*models.Group, error) {
	var group models.Group
	err := r.DB.WithContext(ctx).First(&group, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// AddMember records userID as a member unless they already belong to the group.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) (*models.Group, error) {
	var group *models.Group
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.Group
		if err := tx.First(&g, "id = ?", groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			return err
		}
		group = &g
		if _, ok := g.RoleOf(userID); ok {
			return nil
		}
		g.Members = append(g.Members, userID)
		return tx.Model(&g).Update("members", g.Members).Error
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

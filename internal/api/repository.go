package api

import (
	"context"

	"github.com/cuappdev/clicker-backend/internal/models"
)

// GroupRepository captures the group operations required by handlers.
type GroupRepository interface {
	Create(ctx context.Context, name, adminID string) (*models.Group, error)
	GetByID(ctx context.Context, id string) (*models.Group, error)
	GetByCode(ctx context.Context, code string) (*models.Group, error)
	AddMember(ctx context.Context, groupID, userID string) (*models.Group, error)
}

// DraftRepository captures the draft operations required by handlers.
type DraftRepository interface {
	Create(ctx context.Context, ownerID string, d models.PollDraft) (*models.Draft, error)
	CreateMany(ctx context.Context, ownerID string, drafts []models.PollDraft) ([]models.Draft, error)
	Get(ctx context.Context, id string) (*models.Draft, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Draft, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// EndRelay reaches sessions hosted by other instances.
type EndRelay interface {
	RequestEnd(ctx context.Context, groupID string, save bool) error
	LiveCodes(ctx context.Context) ([]string, error)
	HostOf(ctx context.Context, groupID string) (string, error)
}

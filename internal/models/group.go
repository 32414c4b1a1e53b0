package models

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Group is a classroom. Members join it with Code.
type Group struct {
	ID        string                      `gorm:"primaryKey;size:36" json:"id"`
	Name      string                      `gorm:"not null" json:"name"`
	Code      string                      `gorm:"uniqueIndex;size:16;not null" json:"code"`
	Admins    datatypes.JSONSlice[string] `json:"admins"`
	Members   datatypes.JSONSlice[string] `json:"members"`
	CreatedAt time.Time                   `json:"createdAt"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

// RoleOf reports the role userID holds in the group, or false if none.
func (g *Group) RoleOf(userID string) (Role, bool) {
	switch {
	case lo.Contains(g.Admins, userID):
		return RoleAdmin, true
	case lo.Contains(g.Members, userID):
		return RoleMember, true
	}
	return "", false
}

type CreateGroupRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

func (r *CreateGroupRequest) Validate() error {
	return validate.Struct(r)
}

// LiveGroup is one entry of the live-sessions listing.
type LiveGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

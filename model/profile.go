package model

import "time"

// Profile is a social-graph identity that owns publications.
type Profile struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
}

// DisplayName renders "Name - @handle" or just "@handle".
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name + " - @" + p.Handle
	}
	return "@" + p.Handle
}

// Follow is a follow edge on the local ledger.
type Follow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	FollowerID string `gorm:"size:66;not null;uniqueIndex:uq_follow"`
	FolloweeID string `gorm:"size:66;not null;uniqueIndex:uq_follow"`
	CreatedAt  time.Time
}

// TableName pins the table name.
func (Follow) TableName() string {
	return "follows"
}

package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Establishment struct {
	bun.BaseModel `bun:"table:establishments"`

	ID           string    `bun:"id,pk" json:"id"`
	Name         string    `bun:"name,notnull" json:"name"`
	Email        string    `bun:"email,notnull,unique" json:"email"`
	Slug         string    `bun:"slug,notnull,unique" json:"slug"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"createdAt"`
}

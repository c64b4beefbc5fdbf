package users

import (
	"time"

	"github.com/uptrace/bun"
)

// User represents a sender account. Senders are created implicitly the first
// time an email is scheduled for their address.
type User struct {
	bun.BaseModel `bun:"table:outbox.users,alias:u"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Email     string    `bun:"email,notnull" json:"email"`
	Name      string    `bun:"name" json:"name,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"-"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"-"`
}

package user

import "time"

// User is a registered account. Password holds the bcrypt hash and is
// never serialized.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

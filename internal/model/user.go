package model

import "time"

// MaxUsernameBytes bounds a username after normalisation
const MaxUsernameBytes = 32

// User is a registered credential within one realm
type User struct {
	Realm        Realm     `json:"realm"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

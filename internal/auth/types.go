package auth

import "time"

// User is a principal: a unique username holding a permission set. The
// credential digest never leaves the store layer.
type User struct {
	Username    string    `json:"username"`
	Permissions Set       `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Invite is a consumable grant of permissions. Redeeming it creates a new
// user carrying a copy of Permissions; Remaining counts redemptions left
// and the row is deleted, never left at zero, when the last one is used.
type Invite struct {
	Code        string    `json:"code"`
	Permissions Set       `json:"permissions"`
	Remaining   int       `json:"remaining"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"created_at"`
}

// Login carries a plaintext credential inbound. It is never logged and
// never serialized back out.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserFilter narrows ListUsers. Zero fields match everything.
type UserFilter struct {
	Username   string
	Permission Permission
	Limit      int
}

// InviteFilter narrows ListInvites. Zero fields match everything.
type InviteFilter struct {
	Code         string
	Creator      string
	MinRemaining int
	MaxRemaining int
	Limit        int
}

// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 64
)

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type UserID string

// User is the counterpart as the relay describes it.
type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
}

// Identity is the authenticated local user. Token is the bearer credential
// shared with the chat channel; it is never persisted by this module.
type Identity struct {
	UserID      UserID
	DisplayName string
	Token       string
}

func NewIdentity(id, displayName, token string) (*Identity, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	if displayName == "" {
		displayName = id
	}
	return &Identity{UserID: UserID(id), DisplayName: displayName, Token: token}, nil
}

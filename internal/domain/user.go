// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

type UserID string

// User is the identity a verified token resolves to.
type User struct {
	ID       UserID `json:"userId"`
	Username string `json:"username"`
}

// NewUser validates the pair a verifier produced.
func NewUser(id, username string) (User, error) {
	u := User{ID: UserID(strings.TrimSpace(id)), Username: strings.TrimSpace(username)}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	return u, nil
}

func (u User) Validate() error {
	switch {
	case u.ID == "":
		return ErrUserIDEmpty
	case len(u.ID) > MaxUserIDLen:
		return ErrUserIDTooLong
	case u.Username == "":
		return ErrUsernameEmpty
	case len(u.Username) > MaxUsernameLen:
		return ErrUsernameTooLong
	}
	return nil
}

// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong      = errors.New("username too long")
	ErrUsernameEmpty        = errors.New("username empty")
	ErrUnknownGender        = errors.New("unknown gender")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
)

type UserID string

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusJoined  Status = "joined"
	StatusOffline Status = "offline"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Opposite is defined for the two recognized values only.
func (g Gender) Opposite() (Gender, error) {
	switch g {
	case GenderMale:
		return GenderFemale, nil
	case GenderFemale:
		return GenderMale, nil
	}
	return "", ErrUnknownGender
}

// Profile is the directory record of a user.
type Profile struct {
	ID         UserID `json:"id"`
	Username   string `json:"username"`
	PostalCode string `json:"pincode"`
	Gender     Gender `json:"gender"`
	Status     Status `json:"status"`
}

// NewProfile is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewProfile(id UserID, username, postalCode string, gender Gender) (*Profile, error) {
	p := &Profile{ID: id, PostalCode: postalCode, Gender: gender, Status: StatusOffline}
	if err := p.SetUsername(username); err != nil {
		return nil, err
	}
	if _, err := gender.Opposite(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetUsername limits the name to MaxUsernameLen characters, not bytes.
func (p *Profile) SetUsername(username string) error {
	if username == "" {
		return ErrUsernameEmpty
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	p.Username = username
	return nil
}

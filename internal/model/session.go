package model

import (
	"fmt"
	"time"
)

// Session is the persisted part of one browser session.
type Session struct {
	ID        string          `json:"id"`
	Phone     string          `json:"phone,omitempty"`
	User      *User           `json:"user,omitempty"`
	Cookies   []SessionCookie `json:"cookies,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SessionCookie is a remote-service cookie carried on behalf of the browser.
type SessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *Session) Key() string {
	return fmt.Sprintf("session:%s", s.ID)
}

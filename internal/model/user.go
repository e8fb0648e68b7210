package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexibleID accepts both JSON numbers and strings.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// User is the Telegram account reported by the remote auth service.
type User struct {
	ID        FlexibleID `json:"id,omitempty"`
	FirstName string     `json:"firstName,omitempty"`
	Username  string     `json:"username,omitempty"`
}

// DisplayName picks the friendliest label available.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return string(u.ID)
}

type AuthStatus struct {
	LoggedIn bool  `json:"loggedIn"`
	User     *User `json:"user,omitempty"`
}

package session

import (
	"encoding/json"
	"errors"
)

// Persisted key names.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// Keys lists every key owned by the session, in the order they are written.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// ErrCorruptSession is returned by Open when persisted state cannot be decoded.
// The persisted keys are cleared before it is returned.
var ErrCorruptSession = errors.New("session: persisted state is corrupt")

// ErrNoAccessToken is returned by Save when the session has no access token.
var ErrNoAccessToken = errors.New("session: access token is required")

// User is the signed-in account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Phone string `json:"phone,omitempty"`
}

// Session is a snapshot of the three session fields.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// IsAuthenticated reports whether the snapshot carries an access token.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

func encodeUser(u User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeUser(s string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

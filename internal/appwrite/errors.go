package appwrite

import (
	"fmt"
)

// APIError is an error response from the store.
type APIError struct {
	Status  int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// AuthFailure means the identity provider rejected a session check, login
// or logout.
type AuthFailure struct {
	Op  string
	Err error
}

func (e *AuthFailure) Error() string { return fmt.Sprintf("auth %s: %v", e.Op, e.Err) }
func (e *AuthFailure) Unwrap() error { return e.Err }

// RemoteOpFailure means a document create/read/update/delete or a realtime
// subscribe call failed.
type RemoteOpFailure struct {
	Op  string
	Err error
}

func (e *RemoteOpFailure) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *RemoteOpFailure) Unwrap() error { return e.Err }

func authFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AuthFailure{Op: op, Err: err}
}

func remoteFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteOpFailure{Op: op, Err: err}
}

package model

import (
	"time"
)

// AuthSession is the transient state of one owner's sign-in handshake.
// AppID, AppSecret and Phone are written once while collecting.
type AuthSession struct {
	ID        string     `json:"sessionId"`
	OwnerID   int64      `json:"ownerId"`
	Method    AuthMethod `json:"method"`
	AppID     int64      `json:"appId,omitempty"`
	AppSecret string     `json:"-"`
	Phone     string     `json:"phone,omitempty"`
	State     AuthState  `json:"state"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CodeHash  string     `json:"-"`
	QRURL     string     `json:"qrUrl,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// StepResult is returned to the caller after every handshake step.
type StepResult struct {
	SessionID string     `json:"sessionId"`
	State     AuthState  `json:"state"`
	Prompt    string     `json:"prompt,omitempty"`
	QRURL     string     `json:"qrUrl,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

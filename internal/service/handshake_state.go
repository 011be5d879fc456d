package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/transport"
	"github.com/openclaw/export-worker-go/internal/util"
)

// remoteAction is the platform call a transition asks the service to make.
type remoteAction int

const (
	actionNone remoteAction = iota
	actionConnect
	actionSendCode
	actionSignIn
	actionCheckPassword
	actionWaitQR
)

func (a remoteAction) String() string {
	switch a {
	case actionConnect:
		return "connect"
	case actionSendCode:
		return "send_code"
	case actionSignIn:
		return "sign_in"
	case actionCheckPassword:
		return "check_password"
	case actionWaitQR:
		return "wait_qr"
	}
	return "none"
}

// remoteResult is what came back from a remoteAction.
type remoteResult struct {
	err      error
	qr       *transport.QRLogin
	codeHash string
	session  *transport.Session
}

type timeouts struct {
	qr   time.Duration
	code time.Duration
}

var (
	errAwaitingScan  = apperrors.ValidationError("Waiting for the QR code to be scanned. Cancel to start over.")
	errEmptyPassword = apperrors.MissingRequired("password")
)

func newAuthSession(id string, ownerID int64, method model.AuthMethod, now time.Time) model.AuthSession {
	return model.AuthSession{
		ID:        id,
		OwnerID:   ownerID,
		Method:    method,
		State:     model.AuthStateCollectingAppID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// expired reports whether the current waiting step is past its deadline.
func expired(s model.AuthSession, now time.Time) bool {
	return s.State.HasDeadline() && s.Deadline != nil && now.After(*s.Deadline)
}

// onInput validates user input for the current state. It either records the
// input and moves on, or names the remote call needed to continue. Malformed
// input leaves the state unchanged.
func onInput(s model.AuthSession, input string, now time.Time) (model.AuthSession, remoteAction, error) {
	if s.State.IsTerminal() {
		return s, actionNone, apperrors.HandshakeEnded(string(s.State))
	}
	if expired(s, now) {
		return end(s, model.AuthStateTimedOut, "step deadline passed", now), actionNone, apperrors.HandshakeTimedOut()
	}

	input = strings.TrimSpace(input)

	switch s.State {
	case model.AuthStateCollectingAppID:
		if !util.IsValidAppID(input) {
			return s, actionNone, apperrors.InvalidInput("appId", "must be a number of at least 5 digits")
		}
		s.AppID, _ = strconv.ParseInt(input, 10, 64)
		s.State = model.AuthStateCollectingAppSecret
		s.UpdatedAt = now
		return s, actionNone, nil

	case model.AuthStateCollectingAppSecret:
		if !util.IsValidAppSecret(input) {
			return s, actionNone, apperrors.InvalidInput("appSecret", "must be 32 hexadecimal characters")
		}
		s.AppSecret = strings.ToLower(input)
		s.UpdatedAt = now
		return s, actionConnect, nil

	case model.AuthStateCollectingPhone:
		if !util.IsValidPhone(input) {
			return s, actionNone, apperrors.InvalidInput("phone", "use international format, e.g. +15551234567")
		}
		s.Phone = util.NormalizePhone(input)
		s.UpdatedAt = now
		return s, actionSendCode, nil

	case model.AuthStateAwaitingCode:
		if !util.IsValidCode(input) {
			return s, actionNone, apperrors.InvalidInput("code", "must be the digits from the login message")
		}
		return s, actionSignIn, nil

	case model.AuthStateAwaitingPassword:
		if input == "" {
			return s, actionNone, errEmptyPassword
		}
		return s, actionCheckPassword, nil

	case model.AuthStateAwaitingQRScan:
		return s, actionNone, errAwaitingScan
	}

	return s, actionNone, apperrors.Internal("unexpected handshake state " + string(s.State))
}

// onResult applies the outcome of a remote call. Rejections recognized by
// the platform move the session per the handshake rules; anything else is a
// transport failure that keeps the state so the step can be retried. A
// failed QR wait is never retried.
func onResult(s model.AuthSession, action remoteAction, res remoteResult, now time.Time, t timeouts) (model.AuthSession, error) {
	if res.err == nil {
		switch action {
		case actionConnect:
			if s.Method == model.AuthMethodCodeScan {
				s.State = model.AuthStateAwaitingQRScan
				s.QRURL = res.qr.URL
				s.Deadline = deadline(now, t.qr)
			} else {
				s.State = model.AuthStateCollectingPhone
			}
		case actionSendCode:
			s.State = model.AuthStateAwaitingCode
			s.CodeHash = res.codeHash
			s.Deadline = deadline(now, t.code)
		case actionSignIn, actionCheckPassword, actionWaitQR:
			s = end(s, model.AuthStateAuthorized, "", now)
			if res.session != nil && res.session.Phone != "" {
				s.Phone = res.session.Phone
			}
		}
		s.UpdatedAt = now
		return s, nil
	}

	err := res.err
	switch {
	case errors.Is(err, transport.ErrInvalidAppCredentials):
		return end(s, model.AuthStateFailed, "app id or secret rejected", now),
			apperrors.InvalidInput("appId", "the platform rejected this app id and secret").WithCause(err)

	case errors.Is(err, transport.ErrInvalidCode):
		return end(s, model.AuthStateFailed, "invalid or expired code", now), apperrors.InvalidCode().WithCause(err)

	case errors.Is(err, transport.ErrPasswordRequired) && action == actionSignIn:
		s.State = model.AuthStateAwaitingPassword
		s.Deadline = deadline(now, t.code)
		s.UpdatedAt = now
		return s, nil

	case errors.Is(err, transport.ErrInvalidPassword):
		s.UpdatedAt = now
		return s, apperrors.InvalidPassword().WithCause(err)

	case errors.Is(err, transport.ErrSessionRevoked):
		return end(s, model.AuthStateFailed, "session revoked by the platform", now),
			apperrors.Wrap(apperrors.ErrCodeNotAuthorized, "The platform revoked this login. Start again with /setup.", err)

	case action == actionWaitQR && errors.Is(err, context.DeadlineExceeded):
		return end(s, model.AuthStateTimedOut, "qr code was not scanned in time", now), apperrors.HandshakeTimedOut().WithCause(err)

	case action == actionWaitQR:
		return end(s, model.AuthStateFailed, "qr login failed", now), apperrors.External("chat platform", err)
	}

	s.UpdatedAt = now
	return s, apperrors.External("chat platform", err)
}

// end moves s into a terminal state and drops the material that is only
// needed while the handshake is live.
func end(s model.AuthSession, state model.AuthState, reason string, now time.Time) model.AuthSession {
	s.State = state
	s.Reason = reason
	s.Deadline = nil
	s.AppSecret = ""
	s.CodeHash = ""
	s.QRURL = ""
	s.UpdatedAt = now
	return s
}

func deadline(now time.Time, d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func promptFor(s model.AuthSession) string {
	switch s.State {
	case model.AuthStateCollectingAppID:
		return "Send your app id (digits only) from the platform developer page."
	case model.AuthStateCollectingAppSecret:
		return "Send your app secret (32 hexadecimal characters)."
	case model.AuthStateAwaitingQRScan:
		return "Scan the QR code from Settings > Devices > Link Desktop Device before it expires."
	case model.AuthStateCollectingPhone:
		return "Send the phone number of the account in international format."
	case model.AuthStateAwaitingCode:
		return "Send the login code. Add spaces between digits if the app refuses to forward it."
	case model.AuthStateAwaitingPassword:
		return "Two-step verification is enabled. Send your cloud password."
	case model.AuthStateAuthorized:
		return "Signed in. You can now submit export and analysis tasks."
	case model.AuthStateCancelled:
		return "Sign-in cancelled."
	case model.AuthStateTimedOut:
		return "Sign-in timed out. Start again with /setup."
	case model.AuthStateFailed:
		return "Sign-in failed. Start again with /setup."
	}
	return ""
}

func stepResult(s model.AuthSession) *model.StepResult {
	return &model.StepResult{
		SessionID: s.ID,
		State:     s.State,
		Prompt:    promptFor(s),
		QRURL:     s.QRURL,
		Deadline:  s.Deadline,
		Reason:    s.Reason,
	}
}

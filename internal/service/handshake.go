package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/audit"
	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/telemetry"
	"github.com/openclaw/export-worker-go/internal/transport"
	"github.com/openclaw/export-worker-go/internal/util"
)

const (
	// terminalRetention keeps failed, cancelled and timed-out sessions visible
	// to Status. Authorized sessions are discarded at once.
	terminalRetention = 10 * time.Minute
	persistTimeout    = 10 * time.Second
)

var (
	errCancelled = errors.New("handshake cancelled")
	errReleased  = errors.New("handshake released")
)

type BeginRequest struct {
	AppID     string           `json:"appId"`
	AppSecret string           `json:"appSecret"`
	Method    model.AuthMethod `json:"method"`
}

// Handshake runs one sign-in state machine per owner. The map lock is only
// held to find a session; each session has its own lock, held across the
// remote call of the current step.
type Handshake struct {
	platform  transport.Platform
	store     *CredentialStore
	notifier  transport.Notifier
	timeouts  timeouts
	retention time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[int64]*liveSession
}

type liveSession struct {
	mu     sync.Mutex
	value  model.AuthSession
	conn   transport.Conn
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// callContext derives a context for one remote call that also ends when the
// session is cancelled.
func (ls *liveSession) callContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(ls.ctx, func() { cancel(context.Cause(ls.ctx)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

func NewHandshake(
	platform transport.Platform,
	store *CredentialStore,
	notifier transport.Notifier,
	qrTimeout time.Duration,
	codeTimeout time.Duration,
) *Handshake {
	return &Handshake{
		platform:  platform,
		store:     store,
		notifier:  notifier,
		timeouts:  timeouts{qr: qrTimeout, code: codeTimeout},
		retention: terminalRetention,
		now:       time.Now,
		sessions:  make(map[int64]*liveSession),
	}
}

// Begin starts a new handshake for ownerID, replacing any previous one.
// AppID and AppSecret are optional; when present they are fed through the
// collecting steps in order.
func (h *Handshake) Begin(ctx context.Context, ownerID int64, req BeginRequest) (*model.StepResult, error) {
	if !util.IsValidEnum(string(req.Method), model.AuthMethods) {
		return nil, apperrors.InvalidInput("method", "must be code-scan or phone-code")
	}

	sessCtx, cancel := context.WithCancelCause(context.Background())
	ls := &liveSession{
		value:  newAuthSession(uuid.NewString(), ownerID, req.Method, h.now()),
		ctx:    sessCtx,
		cancel: cancel,
	}

	h.mu.Lock()
	previous := h.sessions[ownerID]
	h.sessions[ownerID] = ls
	h.mu.Unlock()

	if previous != nil {
		h.abandon(previous)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventHandshakeBegin,
		OwnerID:   ownerID,
		SessionID: ls.value.ID,
		Details:   map[string]interface{}{"method": string(req.Method)},
	})

	ls.mu.Lock()
	defer ls.mu.Unlock()

	for _, input := range []string{req.AppID, req.AppSecret} {
		if input == "" {
			break
		}
		if err := h.step(ctx, ls, input); err != nil {
			return stepResult(ls.value), err
		}
	}
	return stepResult(ls.value), nil
}

// Submit feeds the next piece of user input into the owner's handshake.
func (h *Handshake) Submit(ctx context.Context, ownerID int64, input string) (*model.StepResult, error) {
	ls := h.lookup(ownerID)
	if ls == nil {
		return nil, apperrors.HandshakeNotFound()
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	err := h.step(ctx, ls, input)
	return stepResult(ls.value), err
}

// Cancel discards the owner's handshake without touching any credential.
// A finished but unsuccessful session is also discarded.
func (h *Handshake) Cancel(ctx context.Context, ownerID int64) (*model.StepResult, error) {
	ls := h.lookup(ownerID)
	if ls == nil {
		return nil, apperrors.HandshakeNotFound()
	}

	// Abort any in-flight remote call before waiting for the session lock.
	ls.cancel(errCancelled)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.value.State == model.AuthStateAuthorized {
		return stepResult(ls.value), apperrors.HandshakeEnded(string(ls.value.State))
	}
	if !ls.value.State.IsTerminal() {
		h.apply(ls, end(ls.value, model.AuthStateCancelled, "cancelled by owner", h.now()))
	}
	h.remove(ownerID, ls)

	result := stepResult(ls.value)
	result.State = model.AuthStateCancelled
	result.Prompt = promptFor(model.AuthSession{State: model.AuthStateCancelled})
	return result, nil
}

func (h *Handshake) Status(ctx context.Context, ownerID int64) (*model.StepResult, error) {
	ls := h.lookup(ownerID)
	if ls == nil {
		return nil, apperrors.HandshakeNotFound()
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if now := h.now(); expired(ls.value, now) {
		h.apply(ls, end(ls.value, model.AuthStateTimedOut, "step deadline passed", now))
	}
	return stepResult(ls.value), nil
}

// ExpireStale times out sessions whose waiting step passed its deadline and
// purges finished sessions past retention. It returns how many it touched.
func (h *Handshake) ExpireStale(ctx context.Context) (int64, error) {
	now := h.now()

	h.mu.Lock()
	snapshot := make(map[int64]*liveSession, len(h.sessions))
	for owner, ls := range h.sessions {
		snapshot[owner] = ls
	}
	h.mu.Unlock()

	var count int64
	var expiredOwners []int64
	for owner, ls := range snapshot {
		ls.mu.Lock()
		switch {
		case expired(ls.value, now):
			h.apply(ls, end(ls.value, model.AuthStateTimedOut, "step deadline passed", now))
			expiredOwners = append(expiredOwners, owner)
			count++
		case ls.value.State.IsTerminal() && now.Sub(ls.value.UpdatedAt) > h.retention:
			h.remove(owner, ls)
			count++
		}
		ls.mu.Unlock()
	}

	timedOut := promptFor(model.AuthSession{State: model.AuthStateTimedOut})
	for _, owner := range expiredOwners {
		h.notify(ctx, owner, timedOut)
	}
	return count, nil
}

// step runs one input through the state machine. ls.mu must be held.
func (h *Handshake) step(ctx context.Context, ls *liveSession, input string) error {
	next, action, err := onInput(ls.value, input, h.now())
	h.apply(ls, next)
	if err != nil || action == actionNone {
		return err
	}

	res := h.perform(ctx, ls, action, input)
	if errors.Is(context.Cause(ls.ctx), errCancelled) {
		h.apply(ls, end(ls.value, model.AuthStateCancelled, "cancelled by owner", h.now()))
		return apperrors.HandshakeCancelled()
	}
	return h.settle(ctx, ls, action, res)
}

func (h *Handshake) perform(ctx context.Context, ls *liveSession, action remoteAction, input string) remoteResult {
	callCtx, done := ls.callContext(ctx)
	defer done()

	v := ls.value
	logger := log.With().Int64("ownerId", v.OwnerID).Str("sessionId", v.ID).Str("action", action.String()).Logger()
	logger.Debug().Msg("handshake remote call")

	if action == actionConnect {
		if ls.conn != nil {
			_ = ls.conn.Close()
			ls.conn = nil
		}
		conn, err := h.platform.Connect(callCtx, v.AppID, v.AppSecret)
		if err != nil {
			logger.Warn().Err(err).Msg("platform connect failed")
			return remoteResult{err: err}
		}
		ls.conn = conn
		if v.Method != model.AuthMethodCodeScan {
			return remoteResult{}
		}
		qr, err := conn.RequestQRLogin(callCtx)
		return remoteResult{err: err, qr: qr}
	}

	if ls.conn == nil {
		return remoteResult{err: fmt.Errorf("no platform connection for %s", action)}
	}

	switch action {
	case actionSendCode:
		hash, err := ls.conn.SendCode(callCtx, v.Phone)
		return remoteResult{err: err, codeHash: hash}
	case actionSignIn:
		session, err := ls.conn.SignIn(callCtx, v.Phone, v.CodeHash, util.NormalizeCode(input))
		return remoteResult{err: err, session: session}
	case actionCheckPassword:
		session, err := ls.conn.CheckPassword(callCtx, input)
		if errors.Is(err, transport.ErrInvalidPassword) {
			audit.Log(ctx, audit.Event{Type: audit.EventPasswordRejected, OwnerID: v.OwnerID, SessionID: v.ID})
		}
		return remoteResult{err: err, session: session}
	}
	return remoteResult{err: fmt.Errorf("unsupported handshake action %s", action)}
}

// settle applies a remote result, storing the credential when the handshake
// reaches authorized. ls.mu must be held.
func (h *Handshake) settle(ctx context.Context, ls *liveSession, action remoteAction, res remoteResult) error {
	live := ls.value
	next, err := onResult(live, action, res, h.now(), h.timeouts)

	if next.State == model.AuthStateAuthorized {
		if saveErr := h.persist(ctx, live, res.session); saveErr != nil {
			log.Error().Err(saveErr).Int64("ownerId", live.OwnerID).Str("sessionId", live.ID).Msg("failed to store credential")
			next = end(live, model.AuthStateFailed, "could not store credential", h.now())
			err = apperrors.Internal("Signed in but the credential could not be saved. Start again with /setup.").WithCause(saveErr)
		}
	}

	h.apply(ls, next)

	if action == actionConnect && next.State == model.AuthStateAwaitingQRScan {
		go h.waitForScan(ls, ls.conn)
	}
	return err
}

func (h *Handshake) persist(ctx context.Context, live model.AuthSession, session *transport.Session) error {
	if session == nil || session.Token == "" {
		return fmt.Errorf("platform returned no session")
	}
	phone := session.Phone
	if phone == "" {
		phone = live.Phone
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	_, err := h.store.SaveAuthorization(ctx, model.Authorization{
		OwnerID:      live.OwnerID,
		AppID:        live.AppID,
		AppSecret:    live.AppSecret,
		Phone:        phone,
		SessionToken: session.Token,
	})
	return err
}

// waitForScan owns the single wait on the QR challenge. It runs until the
// scan, the QR timeout, or the end of the session.
func (h *Handshake) waitForScan(ls *liveSession, conn transport.Conn) {
	ctx, cancel := context.WithTimeout(ls.ctx, h.timeouts.qr)
	defer cancel()

	session, err := conn.WaitQRLogin(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("qr wait: %w", context.DeadlineExceeded)
	}

	ls.mu.Lock()
	// A cancelled or replaced session is settled by whoever cancelled it.
	if ls.value.State != model.AuthStateAwaitingQRScan || ls.conn != conn || ls.ctx.Err() != nil {
		ls.mu.Unlock()
		return
	}
	stepErr := h.settle(context.Background(), ls, actionWaitQR, remoteResult{err: err, session: session})
	value := ls.value
	ls.mu.Unlock()

	message := promptFor(value)
	if value.State == model.AuthStateFailed && value.Reason != "" {
		message = fmt.Sprintf("%s (%s)", message, value.Reason)
	}
	if stepErr != nil {
		log.Warn().Err(stepErr).Int64("ownerId", value.OwnerID).Str("sessionId", value.ID).Msg("qr login ended")
	}
	h.notify(context.Background(), value.OwnerID, message)
}

// apply stores next as the session value. Entering a terminal state releases
// the remote connection and the session context; reaching authorized also
// drops the session from the map. ls.mu must be held.
func (h *Handshake) apply(ls *liveSession, next model.AuthSession) {
	prev := ls.value.State
	ls.value = next
	if !next.State.IsTerminal() || prev.IsTerminal() {
		return
	}

	ls.cancel(errReleased)
	if ls.conn != nil {
		if err := ls.conn.Close(); err != nil {
			log.Warn().Err(err).Int64("ownerId", next.OwnerID).Msg("failed to close platform connection")
		}
		ls.conn = nil
	}

	if next.State == model.AuthStateAuthorized {
		h.remove(next.OwnerID, ls)
	}

	telemetry.Handshakes.WithLabelValues(string(next.State)).Inc()
	audit.Log(context.Background(), audit.Event{
		Type:      auditEventFor(next.State),
		OwnerID:   next.OwnerID,
		SessionID: next.ID,
		Details:   map[string]interface{}{"method": string(next.Method), "reason": next.Reason},
	})
}

// abandon ends a session that was replaced by a newer Begin.
func (h *Handshake) abandon(ls *liveSession) {
	ls.cancel(errCancelled)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.value.State.IsTerminal() {
		h.apply(ls, end(ls.value, model.AuthStateCancelled, "replaced by a new sign-in", h.now()))
	}
}

func (h *Handshake) lookup(ownerID int64) *liveSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[ownerID]
}

func (h *Handshake) remove(ownerID int64, ls *liveSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[ownerID] == ls {
		delete(h.sessions, ownerID)
	}
}

func (h *Handshake) notify(ctx context.Context, ownerID int64, text string) {
	if h.notifier == nil || text == "" {
		return
	}
	if err := h.notifier.SendText(ctx, ownerID, text); err != nil {
		log.Warn().Err(err).Int64("ownerId", ownerID).Msg("failed to notify owner about sign-in")
	}
}

func auditEventFor(state model.AuthState) audit.EventType {
	switch state {
	case model.AuthStateAuthorized:
		return audit.EventHandshakeAuthorized
	case model.AuthStateTimedOut:
		return audit.EventHandshakeTimedOut
	case model.AuthStateCancelled:
		return audit.EventHandshakeCancelled
	}
	return audit.EventHandshakeFailed
}

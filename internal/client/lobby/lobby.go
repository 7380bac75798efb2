// Package lobby keeps a client's view of one room in sync with the server.
//
// A Reconciler polls the room on a fixed interval, overlays the caller's
// optimistic "I just joined" state until a poll confirms it, auto-joins public
// rooms once per observation, and reports when the lobby should be left: the
// room was closed, or its game started. All state is owned by the goroutine
// running Run; the exported methods hand work to it.
package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"codearena/internal/client/poll"
	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval        = 2 * time.Second
	DefaultClosedRedirectDelay = 1200 * time.Millisecond
)

var (
	ErrStopped    = errors.New("lobby: reconciler stopped")
	ErrRoomClosed = errors.New("room was closed")
	ErrNoExit     = errors.New("lobby: no exit pending confirmation")
)

type RoomAPI interface {
	GetRoom(ctx context.Context, code string) (*model.Room, error)
	JoinRoom(ctx context.Context, code, password string) (*model.Room, error)
	LeaveRoom(ctx context.Context, code string) (*model.Room, error)
	DeleteRoom(ctx context.Context, code string) error
}

// LastRoomStore remembers the room to offer rejoining later.
type LastRoomStore interface {
	SaveLastRoom(code string) error
	ClearLastRoom(code string) error
}

type NavKind int

const (
	NavRoomBrowser NavKind = iota + 1
	NavGame
)

type Navigation struct {
	Kind   NavKind
	GameID string
}

type ExitMode int

const (
	ExitNone ExitMode = iota
	ExitLeave
	ExitDelete
)

// View is a snapshot of the lobby. Room must be treated as read-only.
type View struct {
	Room    *model.Room
	Loaded  bool
	Joined  bool // server membership or a confirmed-pending join
	Joining bool
	IsOwner bool
	Closed  bool
	Confirm ExitMode
	Err     error
}

type Config struct {
	Code                string
	Me                  model.Identity
	PollInterval        time.Duration
	ClosedRedirectDelay time.Duration
}

type Reconciler struct {
	api     RoomAPI
	store   LastRoomStore
	clock   clockwork.Clock
	cfg     Config
	tracker poll.Tracker

	inbox   chan func(ctx context.Context)
	done    chan struct{}
	nav     chan Navigation
	changed chan struct{}

	mu   sync.RWMutex
	view View

	// Owned by the Run goroutine.
	room          *model.Room
	loaded        bool
	optimistic    bool
	joining       bool
	latched       bool
	failedVersion int64
	closed        bool
	confirm       ExitMode
	exiting       bool
	lastErr       error
	closeTimer    clockwork.Timer
	finished      bool
}

func NewReconciler(api RoomAPI, store LastRoomStore, clock clockwork.Clock, cfg Config) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ClosedRedirectDelay <= 0 {
		cfg.ClosedRedirectDelay = DefaultClosedRedirectDelay
	}
	cfg.Code = model.CanonicalRoomCode(cfg.Code)
	return &Reconciler{
		api:           api,
		store:         store,
		clock:         clock,
		cfg:           cfg,
		inbox:         make(chan func(ctx context.Context), 16),
		done:          make(chan struct{}),
		nav:           make(chan Navigation, 1),
		changed:       make(chan struct{}, 1),
		failedVersion: -1,
	}
}

// Navigations delivers at most one navigation, after which Run returns.
func (r *Reconciler) Navigations() <-chan Navigation { return r.nav }

// Changes is signalled (coalesced) whenever View changes.
func (r *Reconciler) Changes() <-chan struct{} { return r.changed }

func (r *Reconciler) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// Run polls until ctx is cancelled or a navigation is emitted. Every timer
// and pending callback is torn down before it returns.
func (r *Reconciler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		poll.StopTimer(r.closeTimer)
		cancel()
		close(r.done)
	}()

	r.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if !r.closed {
				r.poll(ctx)
			}
		case fn := <-r.inbox:
			fn(ctx)
			r.publish()
		case <-poll.TimerChan(r.closeTimer):
			r.closeTimer = nil
			r.navigate(Navigation{Kind: NavRoomBrowser})
		}
		if r.finished {
			return nil
		}
	}
}

// post runs fn on the Run goroutine. It reports false once Run has returned.
func (r *Reconciler) post(fn func(ctx context.Context)) bool {
	select {
	case r.inbox <- fn:
		return true
	case <-r.done:
		return false
	}
}

// call is post that waits for fn to finish.
func (r *Reconciler) call(fn func(ctx context.Context)) bool {
	ran := make(chan struct{})
	if !r.post(func(ctx context.Context) { fn(ctx); close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-r.done:
		return false
	}
}

func (r *Reconciler) poll(ctx context.Context) {
	seq := r.tracker.Next()
	go func() {
		room, err := r.api.GetRoom(ctx, r.cfg.Code)
		r.post(func(ctx context.Context) { r.applyPoll(ctx, seq, room, err) })
	}()
}

func (r *Reconciler) applyPoll(ctx context.Context, seq uint64, room *model.Room, err error) {
	if !r.tracker.Accept(seq) {
		log.Debug().Str("room_code", r.cfg.Code).Uint64("seq", seq).Msg("discarding stale room poll")
		return
	}
	if r.closed || r.finished {
		return
	}
	r.loaded = true

	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			r.markClosed()
			return
		}
		log.Warn().Err(err).Str("room_code", r.cfg.Code).Msg("room poll failed")
		return
	}

	if r.room != nil && room.Version == r.room.Version && room.Status == r.room.Status {
		return
	}
	r.room = room
	if room.HasMember(r.cfg.Me.UserID) {
		r.optimistic = false
	}

	if room.Status == model.RoomStatusRunning && room.ActiveGameID != "" {
		// Takes priority over a pending leave confirmation.
		r.confirm = ExitNone
		r.navigate(Navigation{Kind: NavGame, GameID: room.ActiveGameID})
		return
	}
	r.maybeAutoJoin(ctx)
}

func (r *Reconciler) markClosed() {
	r.closed = true
	r.lastErr = ErrRoomClosed
	r.confirm = ExitNone
	r.clearLastRoom()
	r.closeTimer = r.clock.NewTimer(r.cfg.ClosedRedirectDelay)
	log.Info().Str("room_code", r.cfg.Code).Msg("room closed, leaving lobby")
}

func (r *Reconciler) joined() bool {
	return r.room.HasMember(r.cfg.Me.UserID) || r.optimistic
}

func (r *Reconciler) maybeAutoJoin(ctx context.Context) {
	switch {
	case r.room == nil, r.room.IsPrivate, r.room.Status != model.RoomStatusWaiting:
		return
	case r.cfg.Me.UserID == "", r.joined(), r.joining, r.latched, r.exiting:
		return
	case r.failedVersion == r.room.Version:
		// The last attempt already failed against this exact state.
		return
	}

	basedOn := r.room.Version
	r.latched = true
	r.joining = true
	r.lastErr = nil
	log.Debug().Str("room_code", r.cfg.Code).Int64("version", basedOn).Msg("auto-joining room")
	go func() {
		_, err := r.api.JoinRoom(ctx, r.cfg.Code, "")
		r.post(func(context.Context) { r.joinDone(err, basedOn) })
	}()
}

func (r *Reconciler) joinDone(err error, basedOn int64) {
	r.joining = false
	if err != nil {
		r.latched = false
		if basedOn >= 0 {
			r.failedVersion = basedOn
		}
		r.lastErr = err
		log.Warn().Err(err).Str("room_code", r.cfg.Code).Msg("join failed")
		return
	}
	r.optimistic = true
	r.lastErr = nil
	if r.store != nil {
		if err := r.store.SaveLastRoom(r.cfg.Code); err != nil {
			log.Warn().Err(err).Msg("failed to remember last room")
		}
	}
}

// Join joins explicitly, with a password for private rooms. It also serves
// as the manual retry after a failed auto-join. Errors are returned, never
// retried.
func (r *Reconciler) Join(ctx context.Context, password string) error {
	busy := false
	if !r.call(func(context.Context) {
		if r.joining {
			busy = true
			return
		}
		r.joining = true
		r.latched = true
		r.lastErr = nil
	}) {
		return ErrStopped
	}
	if busy {
		return common.Errorf("a join is already in progress: %w", common.ErrConflict)
	}

	_, err := r.api.JoinRoom(ctx, r.cfg.Code, password)
	r.post(func(context.Context) { r.joinDone(err, -1) })
	return err
}

// RequestExit opens the confirmation step for leaving (or, for the owner,
// deleting) the room. Back-navigation in a UI maps to RequestExit(ExitLeave).
func (r *Reconciler) RequestExit(mode ExitMode) {
	r.post(func(context.Context) {
		if r.closed || r.finished {
			return
		}
		if mode == ExitDelete && (r.room == nil || r.room.OwnerUserID != r.cfg.Me.UserID) {
			return
		}
		r.confirm = mode
	})
}

func (r *Reconciler) CancelExit() {
	r.post(func(context.Context) { r.confirm = ExitNone })
}

// ConfirmExit performs the pending leave or delete. On success the lobby
// navigates to the room browser; on failure the error is surfaced and the
// lobby stays.
func (r *Reconciler) ConfirmExit(ctx context.Context) error {
	mode := ExitNone
	if !r.call(func(context.Context) {
		mode = r.confirm
		r.confirm = ExitNone
		r.exiting = mode != ExitNone
	}) {
		return ErrStopped
	}

	var err error
	switch mode {
	case ExitLeave:
		_, err = r.api.LeaveRoom(ctx, r.cfg.Code)
	case ExitDelete:
		err = r.api.DeleteRoom(ctx, r.cfg.Code)
	default:
		return ErrNoExit
	}

	r.post(func(context.Context) {
		if err != nil {
			r.exiting = false
			r.lastErr = err
			return
		}
		r.clearLastRoom()
		r.navigate(Navigation{Kind: NavRoomBrowser})
	})
	return err
}

func (r *Reconciler) clearLastRoom() {
	if r.store == nil {
		return
	}
	if err := r.store.ClearLastRoom(r.cfg.Code); err != nil {
		log.Warn().Err(err).Msg("failed to clear last room")
	}
}

func (r *Reconciler) navigate(n Navigation) {
	if r.finished {
		return
	}
	r.finished = true
	poll.StopTimer(r.closeTimer)
	r.closeTimer = nil
	r.nav <- n
	r.publish()
}

func (r *Reconciler) publish() {
	v := View{
		Room:    r.room,
		Loaded:  r.loaded,
		Joined:  r.room != nil && r.joined(),
		Joining: r.joining,
		IsOwner: r.room != nil && r.room.OwnerUserID == r.cfg.Me.UserID,
		Closed:  r.closed,
		Confirm: r.confirm,
		Err:     r.lastErr,
	}
	r.mu.Lock()
	r.view = v
	r.mu.Unlock()
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

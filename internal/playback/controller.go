// Package playback keeps every participant's local player within a small
// time tolerance of the room's shared playback record. Only the host's
// actions and periodic sampling write the record; everyone reconciles.
package playback

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/domain"
)

var (
	ErrNotHost        = errors.New("operation requires host role")
	ErrRecordNotFound = errors.New("playback record not found")
	ErrNoPlayer       = errors.New("no player attached")
)

// Player is the local media control surface (embedded player).
type Player interface {
	Position() float64
	Playing() bool
	Seek(pos float64)
	Play()
	Pause()
	Load(itemID string)
}

// RecordStore reads and upserts the shared playback record for a room.
type RecordStore interface {
	Fetch(ctx context.Context, roomID domain.RoomID) (*domain.PlaybackRecord, error)
	Upsert(ctx context.Context, rec *domain.PlaybackRecord) error
}

// QueueSource exposes the song queue head and host-driven advancement.
type QueueSource interface {
	// Head returns the entry at position 0, or nil when the queue is empty.
	Head(ctx context.Context, roomID domain.RoomID) (*domain.QueueEntry, error)
	// Advance removes the head entry and returns the new head (nil when the
	// queue ran out).
	Advance(ctx context.Context, roomID domain.RoomID) (*domain.QueueEntry, error)
}

// State of the controller's lifecycle.
type State int

const (
	StateUninitialized State = iota
	StatePlayerReady
	StateIdle
	StateSyncing
	StateDestroyed
)

// Tolerances controls the sync heuristics. WriteSuppression must stay
// tighter than FollowerDrift or followers and host oscillate.
type Tolerances struct {
	// FollowerDrift is the allowed divergence in seconds before a follower
	// issues a corrective seek.
	FollowerDrift float64
	// WriteSuppression is the host-side position delta below which the
	// periodic sync skips its write.
	WriteSuppression float64
	// SyncInterval is the host's sampling period.
	SyncInterval time.Duration
}

func DefaultTolerances() Tolerances {
	return Tolerances{
		FollowerDrift:    2.0,
		WriteSuppression: 1.0,
		SyncInterval:     2 * time.Second,
	}
}

func (t Tolerances) validate() error {
	if t.WriteSuppression >= t.FollowerDrift {
		return errors.New("write-suppression threshold must be tighter than follower drift tolerance")
	}
	if t.SyncInterval <= 0 {
		return errors.New("sync interval must be positive")
	}
	return nil
}

// Controller reconciles one local player against the shared record.
type Controller struct {
	roomID domain.RoomID
	userID domain.UserID
	host   bool

	store RecordStore
	queue QueueSource
	tol   Tolerances
	now   func() time.Time

	mu            sync.Mutex
	state         State
	player        Player
	ctx           context.Context
	current       string // item id last loaded into the player
	lastRecord    *domain.PlaybackRecord
	lastWrittenAt int64
	syncing       bool
	pending       *domain.PlaybackRecord
	writeInFlight bool

	stopTick chan struct{}
	tickDone chan struct{}
}

func NewController(roomID domain.RoomID, userID domain.UserID, host bool, store RecordStore, queue QueueSource, tol Tolerances) (*Controller, error) {
	if err := tol.validate(); err != nil {
		return nil, err
	}
	return &Controller{
		roomID: roomID,
		userID: userID,
		host:   host,
		store:  store,
		queue:  queue,
		tol:    tol,
		now:    time.Now,
		state:  StateUninitialized,
	}, nil
}

func (c *Controller) IsHost() bool { return c.host }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AttachPlayer binds the local control surface once the embed finished
// loading, moves the controller to PlayerReady and runs the initial record
// load. The host's periodic sync starts here and runs until Detach.
func (c *Controller) AttachPlayer(ctx context.Context, p Player) error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return errors.New("controller destroyed")
	}
	c.player = p
	c.ctx = ctx
	c.state = StatePlayerReady
	c.mu.Unlock()

	if err := c.LoadRecord(ctx); err != nil {
		log.Error().Err(err).Str("module", "playback").Str("room", string(c.roomID)).Msg("initial record load")
	}
	if c.host {
		c.startHostSync(ctx)
	}
	return nil
}

// Detach stops the periodic sync and moves to Destroyed. Further updates
// are ignored.
func (c *Controller) Detach() {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.state = StateDestroyed
	stop := c.stopTick
	done := c.tickDone
	c.stopTick = nil
	c.tickDone = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// LoadRecord fetches the room's record. When none exists and the local
// participant is host, one is initialized from the queue head, paused at 0.
func (c *Controller) LoadRecord(ctx context.Context) error {
	rec, err := c.store.Fetch(ctx, c.roomID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		if !c.host {
			return nil
		}
		return c.initRecord(ctx)
	case err != nil:
		return err
	}
	c.reconcile(*rec)
	return nil
}

func (c *Controller) initRecord(ctx context.Context) error {
	head, err := c.queue.Head(ctx, c.roomID)
	if err != nil {
		return err
	}
	rec := &domain.PlaybackRecord{
		RoomID:   c.roomID,
		Playing:  false,
		Position: 0,
	}
	if head != nil {
		rec.CurrentItemID = head.ItemID
	}
	return c.writeRecord(ctx, rec)
}

// OnExternalUpdate is invoked whenever the shared record changes. The echo
// of this client's own last write is skipped; everything else reconciles.
func (c *Controller) OnExternalUpdate(rec domain.PlaybackRecord) {
	c.mu.Lock()
	if c.state == StateDestroyed || c.player == nil {
		c.mu.Unlock()
		return
	}
	if rec.UpdatedBy == c.userID && rec.UpdatedAt == c.lastWrittenAt {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.reconcile(rec)
}

// reconcile applies one pass of position and play-state alignment. A pass
// already in flight is not interrupted; the newest record arriving meanwhile
// is applied on the next pass.
func (c *Controller) reconcile(rec domain.PlaybackRecord) {
	c.mu.Lock()
	if c.state == StateDestroyed || c.player == nil {
		c.mu.Unlock()
		return
	}
	if c.syncing {
		c.pending = &rec
		c.mu.Unlock()
		return
	}
	c.syncing = true
	c.state = StateSyncing

	for {
		player := c.player
		current := c.current
		snapshot := rec
		c.lastRecord = &snapshot
		c.mu.Unlock()

		if rec.CurrentItemID != current {
			if rec.HasItem() {
				player.Load(rec.CurrentItemID)
			}
			c.mu.Lock()
			c.current = rec.CurrentItemID
			c.mu.Unlock()
		}
		if math.Abs(player.Position()-rec.Position) > c.tol.FollowerDrift {
			player.Seek(rec.Position)
		}
		if player.Playing() != rec.Playing {
			if rec.Playing {
				player.Play()
			} else {
				player.Pause()
			}
		}

		c.mu.Lock()
		if c.pending == nil {
			break
		}
		rec = *c.pending
		c.pending = nil
	}
	c.syncing = false
	if c.state == StateSyncing {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

func (c *Controller) startHostSync(ctx context.Context) {
	c.mu.Lock()
	if c.stopTick != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopTick = stop
	c.tickDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.tol.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				c.PeriodicHostSync(ctx)
			}
		}
	}()
}

// PeriodicHostSync samples the local player and writes the shared record,
// unless neither position nor play state moved meaningfully since the last
// known record.
func (c *Controller) PeriodicHostSync(ctx context.Context) {
	if !c.host {
		return
	}
	c.mu.Lock()
	if c.state == StateDestroyed || c.player == nil {
		c.mu.Unlock()
		return
	}
	player := c.player
	last := c.lastRecord
	current := c.current
	c.mu.Unlock()

	pos := player.Position()
	playing := player.Playing()
	if last != nil &&
		math.Abs(pos-last.Position) <= c.tol.WriteSuppression &&
		playing == last.Playing {
		return
	}

	rec := &domain.PlaybackRecord{
		RoomID:        c.roomID,
		CurrentItemID: current,
		Playing:       playing,
		Position:      pos,
	}
	if err := c.writeRecord(ctx, rec); err != nil {
		log.Error().Err(err).Str("module", "playback").Str("room", string(c.roomID)).Msg("periodic sync write")
	}
}

// RequestPlay starts local playback immediately and publishes the new state.
// Host only.
func (c *Controller) RequestPlay(ctx context.Context) error {
	return c.transport(ctx, true)
}

// RequestPause pauses local playback immediately and publishes the new state.
// Host only.
func (c *Controller) RequestPause(ctx context.Context) error {
	return c.transport(ctx, false)
}

func (c *Controller) transport(ctx context.Context, play bool) error {
	if !c.host {
		return ErrNotHost
	}
	c.mu.Lock()
	player := c.player
	current := c.current
	c.mu.Unlock()
	if player == nil {
		return ErrNoPlayer
	}

	if play {
		player.Play()
	} else {
		player.Pause()
	}
	rec := &domain.PlaybackRecord{
		RoomID:        c.roomID,
		CurrentItemID: current,
		Playing:       play,
		Position:      player.Position(),
	}
	return c.writeRecord(ctx, rec)
}

// RequestSkip advances the queue and moves playback to the new head.
// Host only.
func (c *Controller) RequestSkip(ctx context.Context) error {
	if !c.host {
		return ErrNotHost
	}
	c.mu.Lock()
	player := c.player
	c.mu.Unlock()
	if player == nil {
		return ErrNoPlayer
	}

	next, err := c.queue.Advance(ctx, c.roomID)
	if err != nil {
		return err
	}
	rec := &domain.PlaybackRecord{
		RoomID:   c.roomID,
		Playing:  next != nil,
		Position: 0,
	}
	if next != nil {
		rec.CurrentItemID = next.ItemID
		player.Load(next.ItemID)
		player.Play()
	} else {
		player.Pause()
	}
	c.mu.Lock()
	c.current = rec.CurrentItemID
	c.mu.Unlock()
	return c.writeRecord(ctx, rec)
}

// OnItemEnded is fired by the player's end-of-media event. The host advances
// to the next queue entry; followers wait for the record to change.
func (c *Controller) OnItemEnded() {
	if !c.host {
		return
	}
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.RequestSkip(ctx); err != nil {
		log.Error().Err(err).Str("module", "playback").Str("room", string(c.roomID)).Msg("advance on item end")
	}
}

// writeRecord stamps and upserts. A write already in flight suppresses this
// one; the next tick or action tries again.
func (c *Controller) writeRecord(ctx context.Context, rec *domain.PlaybackRecord) error {
	c.mu.Lock()
	if c.writeInFlight {
		c.mu.Unlock()
		return nil
	}
	c.writeInFlight = true
	rec.UpdatedBy = c.userID
	rec.UpdatedAt = c.now().UnixMilli()
	c.mu.Unlock()

	err := c.store.Upsert(ctx, rec)

	c.mu.Lock()
	c.writeInFlight = false
	if err == nil {
		c.lastRecord = rec
		c.lastWrittenAt = rec.UpdatedAt
		if rec.CurrentItemID != "" {
			c.current = rec.CurrentItemID
		}
	}
	c.mu.Unlock()
	return err
}

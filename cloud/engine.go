package cloud

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/antigravity-app/antigravity/chat"
	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/store"
)

const (
	// pushGuardMillis shields a device that just wrote locally from
	// being overwritten by a slightly newer inbound push.
	pushGuardMillis = 3000

	// debounceDelay batches bursts of local mutations into one upload.
	debounceDelay = 2000 * time.Millisecond
)

// SyncEngine connects the local session state to a RemoteStore and
// keeps both sides converged with last-writer-wins semantics keyed on
// payload timestamps.
type SyncEngine struct {
	mu sync.Mutex

	store    store.Store
	remote   RemoteStore
	sessions *chat.SessionManager

	status   domain.SyncStatus
	lastErr  string
	syncCode string

	unsubscribe   func()
	debounce      *time.Timer
	debounceDelay time.Duration

	// applyStarted/applyDone count inbound applies. While they differ
	// an apply is in flight and local mutation callbacks it triggers
	// must not schedule an upload.
	applyStarted uint64
	applyDone    uint64

	now func() int64
}

// NewSyncEngine creates a disconnected engine.
func NewSyncEngine(st store.Store, remote RemoteStore, sessions *chat.SessionManager) *SyncEngine {
	return &SyncEngine{
		store:         st,
		remote:        remote,
		sessions:      sessions,
		status:        domain.SyncIdle,
		debounceDelay: debounceDelay,
		now:           domain.NowMillis,
	}
}

// Status reports the engine state, the active sync code and the last
// error message, if any.
func (e *SyncEngine) Status() (domain.SyncStatus, string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.syncCode, e.lastErr
}

func (e *SyncEngine) setStatus(status domain.SyncStatus, errMsg string) {
	e.mu.Lock()
	e.status = status
	e.lastErr = errMsg
	e.mu.Unlock()
}

// Resume reconnects using a sync code persisted by a previous run.
func (e *SyncEngine) Resume(ctx context.Context) {
	cfg, err := e.store.GetCloudConfig(ctx)
	if err != nil || cfg.SyncCode == "" {
		return
	}
	if err := e.Connect(ctx, cfg.SyncCode); err != nil {
		log.Printf("ERROR: cloud resume failed: %v", err)
	}
}

// Connect joins a sync namespace. The newer side wins: a strictly newer
// remote document replaces local state, otherwise the local state is
// uploaded. An absent remote document is seeded from local state.
func (e *SyncEngine) Connect(ctx context.Context, code string) error {
	code = CanonicalizeSyncCode(code)
	if !ValidSyncCode(code) {
		return fmt.Errorf("invalid sync code %q", code)
	}

	e.Disconnect(ctx, false)
	e.setStatus(domain.SyncSyncing, "")

	remote, err := e.remote.Read(ctx, code)
	if err != nil {
		e.setStatus(domain.SyncError, err.Error())
		return fmt.Errorf("failed to read remote state: %w", err)
	}

	local := e.localPayload()
	switch {
	case remote == nil:
		if err := e.upload(ctx, code, local); err != nil {
			e.setStatus(domain.SyncError, err.Error())
			return err
		}
	case remote.LastUpdated > local.LastUpdated:
		if err := e.applyRemote(ctx, remote); err != nil {
			e.setStatus(domain.SyncError, err.Error())
			return err
		}
	case local.LastUpdated > remote.LastUpdated:
		if err := e.upload(ctx, code, local); err != nil {
			e.setStatus(domain.SyncError, err.Error())
			return err
		}
	default:
		// Timestamps match: both sides already hold the same state.
		log.Printf("[SYNC] fully synced, code=%s", code)
	}

	unsubscribe, err := e.remote.Subscribe(ctx, code, func(payload *domain.SyncPayload) {
		e.handlePush(context.Background(), payload)
	})
	if err != nil {
		e.setStatus(domain.SyncError, err.Error())
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	e.mu.Lock()
	e.syncCode = code
	e.unsubscribe = unsubscribe
	e.status = domain.SyncConnected
	e.lastErr = ""
	e.mu.Unlock()

	if err := e.store.SetCloudConfig(ctx, domain.CloudConfig{SyncCode: code, LastSync: e.now()}); err != nil {
		log.Printf("ERROR: failed to persist cloud config: %v", err)
	}
	log.Printf("[SYNC] connected, code=%s", code)
	return nil
}

// ForceSync unconditionally uploads the local state.
func (e *SyncEngine) ForceSync(ctx context.Context) error {
	e.mu.Lock()
	code := e.syncCode
	connected := e.status == domain.SyncConnected
	e.mu.Unlock()
	if !connected {
		return fmt.Errorf("not connected")
	}
	return e.upload(ctx, code, e.localPayload())
}

// Disconnect tears down the subscription and returns to idle. When
// forget is true the persisted sync code is cleared as well.
func (e *SyncEngine) Disconnect(ctx context.Context, forget bool) {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.syncCode = ""
	e.status = domain.SyncIdle
	e.lastErr = ""
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if forget {
		if err := e.store.ClearCloudConfig(ctx); err != nil {
			log.Printf("ERROR: failed to clear cloud config: %v", err)
		}
	}
}

// NotifyLocalMutation schedules a debounced upload of the local state.
// Mutations caused by applying an inbound payload are ignored.
func (e *SyncEngine) NotifyLocalMutation() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != domain.SyncConnected || e.applyStarted != e.applyDone {
		return
	}
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.debounceDelay, func() {
		e.mu.Lock()
		code := e.syncCode
		connected := e.status == domain.SyncConnected
		e.mu.Unlock()
		if !connected {
			return
		}
		if err := e.upload(context.Background(), code, e.localPayload()); err != nil {
			log.Printf("ERROR: debounced upload failed: %v", err)
		}
	})
}

// handlePush processes one inbound remote payload. The remote state is
// applied only when it is newer than local state by more than the push
// guard margin, which filters out echoes of this device's own uploads.
func (e *SyncEngine) handlePush(ctx context.Context, payload *domain.SyncPayload) {
	if payload == nil {
		return
	}
	local := e.localPayload()
	if payload.LastUpdated <= local.LastUpdated+pushGuardMillis {
		return
	}
	if err := e.applyRemote(ctx, payload); err != nil {
		log.Printf("ERROR: failed to apply remote state: %v", err)
	}
}

// localPayload snapshots the local state. LastUpdated carries the
// profile's stamp for connect-time comparison; upload replaces it with
// the upload time.
func (e *SyncEngine) localPayload() domain.SyncPayload {
	profile, sessions := e.sessions.Snapshot()
	return domain.SyncPayload{
		Profile:     profile,
		Sessions:    sessions,
		LastUpdated: profile.LastUpdated,
	}
}

// upload writes the payload and stamps the last sync time. The payload
// clock is always the upload time, not the profile's: session-only
// mutations never touch the profile stamp, and a stale clock would be
// dropped by every peer's push guard.
func (e *SyncEngine) upload(ctx context.Context, code string, payload domain.SyncPayload) error {
	payload.LastUpdated = e.now()
	if err := e.remote.Write(ctx, code, payload); err != nil {
		return fmt.Errorf("failed to upload state: %w", err)
	}
	if err := e.store.SetCloudConfig(ctx, domain.CloudConfig{SyncCode: code, LastSync: e.now()}); err != nil {
		log.Printf("ERROR: failed to persist cloud config: %v", err)
	}
	return nil
}

// applyRemote overwrites the local state with the remote payload.
func (e *SyncEngine) applyRemote(ctx context.Context, payload *domain.SyncPayload) error {
	e.mu.Lock()
	e.applyStarted++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.applyDone++
		e.mu.Unlock()
	}()

	profile := payload.Profile
	if profile.Facts == nil {
		profile.Facts = []string{}
	}
	if profile.LastUpdated == 0 {
		profile.LastUpdated = payload.LastUpdated
	}
	if err := e.sessions.ReplaceAll(ctx, profile, payload.Sessions); err != nil {
		return err
	}
	log.Printf("[SYNC] applied remote state, sessions=%d, lastUpdated=%d", len(payload.Sessions), payload.LastUpdated)
	return nil
}

package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	gosync "sync"

	"github.com/tonimelisma/screener-go/internal/api"
	"github.com/tonimelisma/screener-go/internal/notice"
)

// Service is the subset of the API client the registry calls.
type Service interface {
	ListSessions(ctx context.Context) (*api.SessionList, error)
	CurrentSession(ctx context.Context) (*api.CurrentSession, error)
	CreateSession(ctx context.Context, name string) (*api.CreatedSession, error)
	SetActiveSession(ctx context.Context, id string) error
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) (*api.DeletedSession, error)
	SessionFiles(ctx context.Context, id, prefix string) (*api.SessionFiles, error)
}

// Session is a cached server-side session.
type Session struct {
	ID        string
	Name      string
	Created   string
	FileCount int
}

// Snapshot is a copy of the cache.
type Snapshot struct {
	Sessions []Session
	ActiveID string // "" when unknown or none
	Loaded   bool   // a list has been applied since the last reset
}

// Active returns the cached active session, if it is in the list.
func (s Snapshot) Active() (Session, bool) {
	for _, sess := range s.Sessions {
		if sess.ID == s.ActiveID {
			return sess, true
		}
	}

	return Session{}, false
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, s Session) (bool, error)
}

// ConfirmFunc adapts a plain function to Confirmer.
type ConfirmFunc func(ctx context.Context, s Session) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, s Session) (bool, error) { return f(ctx, s) }

// Registry is the session cache. Safe for concurrent use.
//
// Responses may arrive out of order when calls overlap. Each cache write is
// tagged with a sequence number taken when its request was dispatched, and a
// write older than the last applied one is dropped. The session list and the
// active pointer are guarded independently.
type Registry struct {
	svc      Service
	confirm  Confirmer
	notifier notice.Notifier
	logger   *slog.Logger

	mu        gosync.Mutex
	sessions  []Session
	activeID  string
	loaded    bool
	listSeq   uint64 // last dispatched list
	listDone  uint64 // last applied list
	activeSeq uint64
	activeSet uint64
	observers []func(activeID string)
}

// NewRegistry creates an empty Registry. A nil confirmer declines every delete.
func NewRegistry(svc Service, confirm Confirmer, notifier notice.Notifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	if notifier == nil {
		notifier = notice.Discard
	}

	if confirm == nil {
		confirm = ConfirmFunc(func(context.Context, Session) (bool, error) { return false, nil })
	}

	return &Registry{svc: svc, confirm: confirm, notifier: notifier, logger: logger}
}

// OnActiveChange registers fn to run whenever the active session changes
// through SetActive, Delete, or Reset. fn runs without the registry lock.
func (r *Registry) OnActiveChange(fn func(activeID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers = append(r.observers, fn)
}

// Snapshot returns a copy of the cache.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{Sessions: slices.Clone(r.sessions), ActiveID: r.activeID, Loaded: r.loaded}
}

// Reset drops the cache. Used when the effective identity changes, since
// sessions are scoped to it. Requests in flight when Reset runs are ignored.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.sessions = nil
	r.activeID = ""
	r.loaded = false
	r.listDone = r.listSeq
	r.activeSet = r.activeSeq
	observers := slices.Clone(r.observers)
	r.mu.Unlock()

	r.logger.Debug("session cache reset")
	notifyObservers(observers, "")
}

// List fetches the session list and replaces the cache. If the cached active
// session is no longer listed, the server's pointer is fetched again.
func (r *Registry) List(ctx context.Context) ([]Session, error) {
	list, err := r.list(ctx)
	if err != nil {
		r.fail("Could not load sessions", err)
		return nil, err
	}

	r.notifier.Notify(notice.Success(fmt.Sprintf("Loaded %d sessions", len(list))))

	return list, nil
}

// GetActive fetches the server's active session pointer and caches it.
func (r *Registry) GetActive(ctx context.Context) (string, error) {
	id, err := r.getActive(ctx)
	if err != nil {
		r.fail("Could not load the active session", err)
		return "", err
	}

	r.notifier.Notify(notice.Success("Active session: " + id))

	return id, nil
}

// Create creates a session, refreshes the list, and makes the new session
// active. A blank name fails before any network call.
func (r *Registry) Create(ctx context.Context, name string) (string, error) {
	n, err := validateName(name)
	if err != nil {
		r.fail("Could not create session", err)
		return "", err
	}

	created, err := r.svc.CreateSession(ctx, n)
	if err != nil {
		err = fmt.Errorf("sessions: creating %q: %w", n, err)
		r.fail("Could not create session", err)

		return "", err
	}

	if _, err := r.list(ctx); err != nil {
		r.fail("Session created but refreshing the list failed", err)
		return created.SessionID, err
	}

	if err := r.setActive(ctx, created.SessionID); err != nil {
		r.fail("Session created but activating it failed", err)
		return created.SessionID, err
	}

	r.logger.Info("session created",
		slog.String("session_id", created.SessionID),
		slog.String("name", n),
	)

	r.notifier.Notify(notice.Success(fmt.Sprintf("Created session %q", n)))

	return created.SessionID, nil
}

// SetActive makes id the active session on the server and locally.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	if err := r.setActive(ctx, id); err != nil {
		r.fail("Could not switch session", err)
		return err
	}

	r.notifier.Notify(notice.Success("Switched to session " + r.label(id)))

	return nil
}

// Rename renames a session and refreshes the list. A blank name fails
// before any network call.
func (r *Registry) Rename(ctx context.Context, id, name string) error {
	n, err := validateName(name)
	if err != nil {
		r.fail("Could not rename session", err)
		return err
	}

	if err := r.svc.RenameSession(ctx, id, n); err != nil {
		err = fmt.Errorf("sessions: renaming %s: %w", id, err)
		r.fail("Could not rename session", err)

		return err
	}

	if _, err := r.list(ctx); err != nil {
		r.fail("Session renamed but refreshing the list failed", err)
		return err
	}

	r.notifier.Notify(notice.Success(fmt.Sprintf("Renamed session to %q", n)))

	return nil
}

// Delete asks for confirmation, deletes the session with all its files, and
// refreshes the list. Deleting the active session clears the local pointer
// and asks the server which session is active now.
func (r *Registry) Delete(ctx context.Context, id string) error {
	target := r.lookup(id)

	ok, err := r.confirm.Confirm(ctx, target)
	if err != nil {
		err = fmt.Errorf("sessions: confirming delete: %w", err)
		r.fail("Could not delete session", err)

		return err
	}

	if !ok {
		r.notifier.Notify(notice.Notice{Level: notice.LevelInfo, Title: "Cancelled", Message: "Session not deleted"})
		return ErrDeleteDeclined
	}

	deleted, err := r.svc.DeleteSession(ctx, id)
	if err != nil {
		err = fmt.Errorf("sessions: deleting %s: %w", id, err)
		r.fail("Could not delete session", err)

		return err
	}

	wasActive := r.clearActiveIf(id)

	if _, err := r.list(ctx); err != nil {
		r.fail("Session deleted but refreshing the list failed", err)
		return err
	}

	if wasActive {
		if _, err := r.getActive(ctx); err != nil {
			r.fail("Session deleted but loading the active session failed", err)
			return err
		}
	}

	r.logger.Info("session deleted",
		slog.String("session_id", id),
		slog.Int("deleted_blobs", deleted.DeletedBlobs),
	)

	r.notifier.Notify(notice.Success(fmt.Sprintf("Deleted session %s (%d files)", target.Name, deleted.DeletedBlobs)))

	return nil
}

// Files lists the files stored in a session. Read-only; the cache is not
// touched.
func (r *Registry) Files(ctx context.Context, id, prefix string) ([]string, error) {
	res, err := r.svc.SessionFiles(ctx, id, prefix)
	if err != nil {
		err = fmt.Errorf("sessions: listing files of %s: %w", id, err)
		r.fail("Could not list session files", err)

		return nil, err
	}

	r.notifier.Notify(notice.Success(fmt.Sprintf("%d files in session %s", len(res.Files), r.label(id))))

	return res.Files, nil
}

// list fetches and applies the session list without notices. A stale
// response is dropped and the cached list returned in its place.
func (r *Registry) list(ctx context.Context) ([]Session, error) {
	seq := r.dispatch(&r.listSeq)

	res, err := r.svc.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessions: listing: %w", err)
	}

	list := make([]Session, 0, len(res.Sessions))
	for _, s := range res.Sessions {
		list = append(list, Session{ID: s.ID, Name: s.Name, Created: s.Created, FileCount: max(s.FileCount, 0)})
	}

	r.mu.Lock()
	if seq <= r.listDone {
		applied := slices.Clone(r.sessions)
		r.mu.Unlock()
		r.logger.Debug("discarding stale session list", slog.Uint64("seq", seq))

		return applied, nil
	}

	r.listDone = seq
	r.sessions = list
	r.loaded = true

	dangling := r.activeID != "" && !containsID(list, r.activeID)
	if dangling {
		r.logger.Info("active session vanished remotely", slog.String("session_id", r.activeID))
		r.activeID = ""
	}
	r.mu.Unlock()

	if dangling {
		if _, err := r.getActive(ctx); err != nil {
			return list, err
		}
	}

	return list, nil
}

// getActive fetches and applies the active pointer without notices.
func (r *Registry) getActive(ctx context.Context) (string, error) {
	seq := r.dispatch(&r.activeSeq)

	res, err := r.svc.CurrentSession(ctx)
	if err != nil {
		return "", fmt.Errorf("sessions: loading active session: %w", err)
	}

	r.applyActive(seq, res.SessionID)

	return res.SessionID, nil
}

// setActive moves the pointer remotely, then locally, then notifies
// observers.
func (r *Registry) setActive(ctx context.Context, id string) error {
	seq := r.dispatch(&r.activeSeq)

	if err := r.svc.SetActiveSession(ctx, id); err != nil {
		return fmt.Errorf("sessions: activating %s: %w", id, err)
	}

	r.applyActive(seq, id)

	return nil
}

// applyActive stores id if seq is newer than the last applied pointer and
// notifies observers when the pointer changed.
func (r *Registry) applyActive(seq uint64, id string) {
	r.mu.Lock()
	if seq <= r.activeSet {
		r.mu.Unlock()
		r.logger.Debug("discarding stale active session", slog.Uint64("seq", seq))

		return
	}

	r.activeSet = seq
	changed := r.activeID != id
	r.activeID = id
	observers := slices.Clone(r.observers)
	r.mu.Unlock()

	if changed {
		notifyObservers(observers, id)
	}
}

// clearActiveIf drops the local pointer if it names id. Reports whether it did.
func (r *Registry) clearActiveIf(id string) bool {
	r.mu.Lock()
	if r.activeID != id {
		r.mu.Unlock()
		return false
	}

	r.activeID = ""
	r.activeSet = r.activeSeq
	observers := slices.Clone(r.observers)
	r.mu.Unlock()

	notifyObservers(observers, "")

	return true
}

func (r *Registry) dispatch(counter *uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	*counter++

	return *counter
}

func (r *Registry) lookup(id string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.ID == id {
			return s
		}
	}

	return Session{ID: id, Name: id}
}

// label is the session's name when cached, else its ID.
func (r *Registry) label(id string) string {
	return r.lookup(id).Name
}

func (r *Registry) fail(title string, err error) {
	r.logger.Warn(title, slog.String("error", err.Error()))
	r.notifier.Notify(notice.Failure(title + ": " + err.Error()))
}

func containsID(list []Session, id string) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}

	return false
}

func notifyObservers(observers []func(string), id string) {
	for _, fn := range observers {
		fn(id)
	}
}

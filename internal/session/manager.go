package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"beresin/internal/identity"
	"beresin/internal/models"
	"beresin/internal/poller"
	"beresin/internal/reconcile"
	"beresin/internal/store"
)

// ValidationError blocks a user action locally, before any network call.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

const (
	ErrBlankContent ValidationError = "message content is empty"
	ErrNotSignedIn  ValidationError = "not signed in"
	ErrNoSubject    ValidationError = "no conversation selected"
)

// MessageStore is the slice of the store API the session manager needs.
type MessageStore interface {
	ListThread(ctx context.Context, contactID string) ([]models.Message, error)
	ListOwn(ctx context.Context) ([]models.Message, error)
	Send(ctx context.Context, req store.SendRequest) error
	ListContacts(ctx context.Context) ([]models.Contact, error)
}

type mode int

const (
	// modeSelf is the customer widget: one implicit thread, the
	// principal's own, toggled by widget visibility.
	modeSelf mode = iota
	// modeContact is the operator console: the thread follows the
	// currently selected contact.
	modeContact
)

// Manager keeps one chat view consistent with the shared message log under
// periodic polling. The customer widget and the operator console are the
// same machine with different subject resolution.
//
// Every fetch is stamped with the subject it was issued for; a completion
// whose subject no longer matches the current selection is discarded so a
// late result for a deselected contact can never overwrite the new thread.
type Manager struct {
	store    MessageStore
	ident    identity.Provider
	onScroll func()
	mode     mode

	threadPoll   *poller.Poller
	contactsPoll *poller.Poller

	mu       sync.Mutex
	open     bool
	selected *models.Contact
	messages []models.Message
	tracker  reconcile.Tracker
	contacts []models.Contact
}

// NewCustomerWidget builds the single-thread customer-side manager.
// onScroll may be nil when no view cares about the scroll signal.
func NewCustomerWidget(st MessageStore, ident identity.Provider, period time.Duration, onScroll func()) *Manager {
	return &Manager{
		store:      st,
		ident:      ident,
		onScroll:   onScroll,
		mode:       modeSelf,
		threadPoll: poller.New(period),
	}
}

// NewOperatorConsole builds the multi-contact operator-side manager.
func NewOperatorConsole(st MessageStore, ident identity.Provider, period time.Duration, onScroll func()) *Manager {
	return &Manager{
		store:        st,
		ident:        ident,
		onScroll:     onScroll,
		mode:         modeContact,
		threadPoll:   poller.New(period),
		contactsPoll: poller.New(period),
	}
}

// Open marks the chat view visible and starts the polling that goes with
// it: the self thread for the widget, the contact list (plus the selected
// thread, if any) for the console.
func (m *Manager) Open(ctx context.Context) {
	m.mu.Lock()
	alreadyOpen := m.open
	m.open = true
	selected := m.selected != nil
	m.mu.Unlock()
	if alreadyOpen {
		return
	}

	switch m.mode {
	case modeSelf:
		m.threadPoll.Start(ctx, m.refreshThread)
	case modeContact:
		m.contactsPoll.Start(ctx, m.refreshContacts)
		if selected {
			m.threadPoll.Start(ctx, m.refreshThread)
		}
	}
}

// Close stops all polling for this view. In-flight fetches run to
// completion; their results still go through the subject check.
func (m *Manager) Close() {
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()
	m.threadPoll.Stop()
	if m.contactsPoll != nil {
		m.contactsPoll.Stop()
	}
}

// SelectContact switches the console to a different contact's thread:
// clear the displayed log, reset the growth tracker, then restart polling
// on the new subject with an immediate first fetch.
func (m *Manager) SelectContact(ctx context.Context, c models.Contact) {
	if m.mode != modeContact {
		return
	}
	m.mu.Lock()
	if m.selected != nil && m.selected.ID == c.ID {
		m.mu.Unlock()
		return
	}
	selected := c
	m.selected = &selected
	m.messages = nil
	m.tracker.Reset()
	open := m.open
	m.mu.Unlock()

	// Stop-then-restart: the poller never repoints an in-flight loop.
	m.threadPoll.Stop()
	if open {
		m.threadPoll.Start(ctx, m.refreshThread)
	}
}

// Selected returns the currently selected contact, if any.
func (m *Manager) Selected() (models.Contact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return models.Contact{}, false
	}
	return *m.selected, true
}

// Messages returns the displayed message log.
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Contacts returns the displayed contact list (operator console).
func (m *Manager) Contacts() []models.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Contact, len(m.contacts))
	copy(out, m.contacts)
	return out
}

// LastDisplayedCount exposes the growth tracker's baseline.
func (m *Manager) LastDisplayedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker.LastCount()
}

// SendReply validates and sends a message on the current subject, then
// forces an immediate refetch instead of waiting for the next tick.
// Validation failures never reach the network.
func (m *Manager) SendReply(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrBlankContent
	}
	principal, ok := m.ident.Current()
	if !ok {
		return ErrNotSignedIn
	}
	m.mu.Lock()
	subject, ok := m.subjectLocked()
	m.mu.Unlock()
	if !ok {
		return ErrNoSubject
	}

	req := store.SendRequest{
		SenderID: principal.ID,
		Content:  content,
		Role:     principal.Role,
	}
	if m.mode == modeContact {
		req.ReceiverID = subject
	}
	if err := m.store.Send(ctx, req); err != nil {
		return err
	}

	m.refreshThread(ctx)
	return nil
}

// subjectLocked resolves the polling subject at invocation time, never a
// value captured at scheduling time.
func (m *Manager) subjectLocked() (string, bool) {
	switch m.mode {
	case modeSelf:
		principal, ok := m.ident.Current()
		if !ok {
			return "", false
		}
		return principal.ID, true
	default:
		if m.selected == nil {
			return "", false
		}
		return m.selected.ID, true
	}
}

// refreshThread is the per-tick fetch for the active thread. Transport
// failures are logged and swallowed: the next tick retries.
func (m *Manager) refreshThread(ctx context.Context) {
	m.mu.Lock()
	subject, ok := m.subjectLocked()
	m.mu.Unlock()
	if !ok {
		return
	}

	var (
		fetched []models.Message
		err     error
	)
	if m.mode == modeSelf {
		fetched, err = m.store.ListOwn(ctx)
	} else {
		fetched, err = m.store.ListThread(ctx, subject)
	}
	if err != nil {
		log.Printf("refresh thread %s: %v", subject, err)
		return
	}
	m.applyFetch(subject, fetched)
}

// applyFetch runs a completed fetch through the reconciler, but only after
// re-checking that its subject is still the selected one. The check and the
// apply happen under the same lock.
func (m *Manager) applyFetch(subject string, fetched []models.Message) {
	m.mu.Lock()
	current, ok := m.subjectLocked()
	if !ok || current != subject {
		// Late result for a subject that is no longer selected.
		m.mu.Unlock()
		return
	}
	next, grew := reconcile.Messages(m.messages, fetched, &m.tracker)
	m.messages = next
	m.mu.Unlock()

	if grew && m.onScroll != nil {
		m.onScroll()
	}
}

// refreshContacts replaces the contact list wholesale; small lists get no
// count gate.
func (m *Manager) refreshContacts(ctx context.Context) {
	fetched, err := m.store.ListContacts(ctx)
	if err != nil {
		log.Printf("refresh contacts: %v", err)
		return
	}
	m.mu.Lock()
	m.contacts = fetched
	m.mu.Unlock()
}

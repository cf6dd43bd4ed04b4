package booking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"beresin/internal/models"
	"beresin/internal/poller"
)

// StoreClient is the slice of the booking store API the console needs.
type StoreClient interface {
	ListBookings(ctx context.Context) ([]models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status Status) error
}

// Console owns the operator's booking view: the displayed list and the
// single expanded action menu. At most one row menu is open at a time.
// While the view is open, a poller keeps the list fresh on the same cadence
// as the chat views.
type Console struct {
	client StoreClient
	poll   *poller.Poller

	mu         sync.Mutex
	open       bool
	bookings   []models.Booking
	expandedID string
}

// NewConsole builds a console over the given store client, polling the
// booking list at the given period while open.
func NewConsole(client StoreClient, period time.Duration) *Console {
	return &Console{client: client, poll: poller.New(period)}
}

// Open marks the booking view visible and starts polling the list, with an
// immediate first fetch. Opening an open console is a no-op.
func (c *Console) Open(ctx context.Context) {
	c.mu.Lock()
	alreadyOpen := c.open
	c.open = true
	c.mu.Unlock()
	if alreadyOpen {
		return
	}
	c.poll.Start(ctx, c.refresh)
}

// Close stops the polling. In-flight fetches run to completion.
func (c *Console) Close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.poll.Stop()
}

// refresh is the per-tick fetch. Transport failures are logged and
// swallowed; the next tick retries.
func (c *Console) refresh(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		log.Printf("refresh bookings: %v", err)
	}
}

// Refresh replaces the displayed list with a fresh fetch. Booking lists are
// adopted unconditionally; there is no count gate on them.
func (c *Console) Refresh(ctx context.Context) error {
	fetched, err := c.client.ListBookings(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.bookings = fetched
	c.mu.Unlock()
	return nil
}

// Bookings returns the displayed list.
func (c *Console) Bookings() []models.Booking {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Booking, len(c.bookings))
	copy(out, c.bookings)
	return out
}

// ToggleMenu opens the action menu for the given booking, closing any other
// open menu; toggling the open row closes it.
func (c *Console) ToggleMenu(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expandedID == id {
		c.expandedID = ""
	} else {
		c.expandedID = id
	}
}

// ExpandedID returns the booking id whose menu is open, or "".
func (c *Console) ExpandedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expandedID
}

// ActionsFor returns the legal actions for the booking with the given id.
func (c *Console) ActionsFor(id string) []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.bookings {
		if b.ID == id {
			status, err := ParseStatus(b.Status)
			if err != nil {
				return nil
			}
			return LegalActions(status)
		}
	}
	return nil
}

// ApplyTransition validates the action against the booking's current status,
// submits it, and on success closes the row menu and refreshes the whole
// list so the view stays consistent with concurrent operator sessions.
func (c *Console) ApplyTransition(ctx context.Context, id string, action Action) error {
	c.mu.Lock()
	var current *models.Booking
	for i := range c.bookings {
		if c.bookings[i].ID == id {
			current = &c.bookings[i]
			break
		}
	}
	if current == nil {
		c.mu.Unlock()
		return fmt.Errorf("booking %s not found", id)
	}
	status, err := ParseStatus(current.Status)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	next, err := Next(status, action)
	if err != nil {
		return err
	}
	if err := c.client.UpdateBookingStatus(ctx, id, next); err != nil {
		return err
	}

	c.mu.Lock()
	c.expandedID = ""
	for i := range c.bookings {
		if c.bookings[i].ID == id {
			c.bookings[i].Status = string(next)
			break
		}
	}
	c.mu.Unlock()

	// Full refresh rather than trusting the local patch alone.
	return c.Refresh(ctx)
}

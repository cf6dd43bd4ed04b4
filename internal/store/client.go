package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"beresin/internal/booking"
	"beresin/internal/models"
)

// Client is the engine-side wrapper around the booking/message store API.
// It performs no retries; retry policy belongs to the polling scheduler.
// The bearer token is mutex-guarded: sign-in and sign-out swap it while
// poll-tick goroutines may still be reading it for in-flight requests.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

// New builds a client for the given API base URL. An empty token is allowed
// for endpoints reachable before sign-in.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetToken swaps the bearer token after sign-in or sign-out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// LoginResult is the identity payload returned by the backend on sign-in.
type LoginResult struct {
	Token string `json:"token"`
	User  struct {
		ID    string      `json:"id"`
		Email string      `json:"email"`
		Name  string      `json:"name"`
		Role  models.Role `json:"role"`
	} `json:"user"`
}

// Login authenticates and installs the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var result LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "/login.php", body, &result); err != nil {
		return nil, err
	}
	c.SetToken(result.Token)
	return &result, nil
}

// Logout revokes the current token and clears it from the client.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/logout.php", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// ListThread fetches one contact's message history, in store order.
func (c *Client) ListThread(ctx context.Context, contactID string) ([]models.Message, error) {
	path := "/get_chat_history.php?user_id=" + url.QueryEscape(contactID)
	var messages []models.Message
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ListOwn fetches the caller's own thread (customer widget).
func (c *Client) ListOwn(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message
	if err := c.doJSON(ctx, http.MethodGet, "/get_messages.php", nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendRequest is the payload for a message send. ReceiverID is set for
// operator replies and empty for customer sends.
type SendRequest struct {
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id,omitempty"`
	Content    string      `json:"content"`
	Role       models.Role `json:"role"`
}

// Send submits a message. Content validation happens in the session manager
// before this call.
func (c *Client) Send(ctx context.Context, req SendRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/send_messages.php", req, nil)
}

// ListContacts fetches every customer with an existing thread.
func (c *Client) ListContacts(ctx context.Context) ([]models.Contact, error) {
	var contacts []models.Contact
	if err := c.doJSON(ctx, http.MethodGet, "/get_chat_contacts.php", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// ListBookings fetches all bookings in store order.
func (c *Client) ListBookings(ctx context.Context) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := c.doJSON(ctx, http.MethodGet, "/get_bookings.php", nil, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// UpdateBookingStatus submits a status transition. A backend refusal comes
// back as *RejectedTransitionError; anything else is a *TransportError.
func (c *Client) UpdateBookingStatus(ctx context.Context, id string, status booking.Status) error {
	body := map[string]string{"id": id, "status": string(status)}
	env, err := c.roundTrip(ctx, http.MethodPost, "/update_booking.php", body)
	if err != nil {
		return err
	}
	if !env.Success {
		return &RejectedTransitionError{Message: env.Message}
	}
	return nil
}

// doJSON performs a round trip and decodes env.Data into out when non-nil.
// A success=false envelope is a failed operation, same as a transport error.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	env, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "operation failed"
		}
		return &TransportError{Op: method + " " + path, Err: errors.New(msg)}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (*envelope, error) {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, &TransportError{Op: op, Err: errors.New(msg)}
	}
	return &env, nil
}

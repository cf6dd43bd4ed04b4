package marketplace

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"beresin/internal/booking"
	"beresin/internal/models"
)

// ErrRejectedTransition marks a booking update whose transition is not legal
// from the booking's current status.
var ErrRejectedTransition = errors.New("status transition not allowed")

// Service handles user lifecycle, the message log, and booking persistence.
type Service struct {
	db *sql.DB
}

// NewService builds a new marketplace service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RegisterUser creates a user with the supplied credentials.
func (s *Service) RegisterUser(ctx context.Context, email, password, name, phone string, role models.Role) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, errors.New("email, password and name are required")
	}
	if role == "" {
		role = models.RoleCustomer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(phone),
		Role:         role,
		PasswordHash: hashPassword(password),
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, phone, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.Phone, string(user.Role), user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login validates credentials and returns the user profile.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, phone, role, password_hash, created_at FROM users WHERE email = ?`, email,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &user.Role, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("invalid credentials")
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if user.PasswordHash != hashPassword(password) {
		return nil, errors.New("invalid credentials")
	}
	return &user, nil
}

// SaveMessage appends a message to the shared log. The thread owner is the
// customer side of the exchange: the sender for customer messages, the
// receiver for operator replies.
func (s *Service) SaveMessage(ctx context.Context, sender models.Principal, receiverID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("content cannot be empty")
	}
	if sender.ID == "" {
		return nil, errors.New("sender is required")
	}

	threadOwner := sender.ID
	if sender.Role == models.RoleOperator {
		if receiverID == "" {
			return nil, errors.New("receiver_id is required for operator replies")
		}
		threadOwner = receiverID
	}

	msg := &models.Message{
		ID:            uuid.NewString(),
		ThreadOwnerID: threadOwner,
		SenderID:      sender.ID,
		Content:       content,
		Role:          sender.Role,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_owner_id, sender_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadOwnerID, msg.SenderID, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// ListThread returns the full message history for one customer thread,
// ordered oldest first.
func (s *Service) ListThread(ctx context.Context, threadOwnerID string) ([]models.Message, error) {
	if threadOwnerID == "" {
		return nil, errors.New("thread owner id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_owner_id, sender_id, role, content, created_at
		 FROM messages WHERE thread_owner_id = ? ORDER BY created_at ASC, id ASC`, threadOwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list thread: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ThreadOwnerID, &m.SenderID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListContacts returns every customer with at least one message on record.
func (s *Service) ListContacts(ctx context.Context) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT u.id, u.name, u.email
		 FROM users u JOIN messages m ON m.thread_owner_id = u.id
		 WHERE u.role = ? ORDER BY u.name ASC`, string(models.RoleCustomer),
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ListBookings returns all bookings, newest first.
func (s *Service) ListBookings(ctx context.Context) ([]models.Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service_name, customer_name, status, booking_date, total_price
		 FROM bookings ORDER BY created_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.ServiceName, &b.CustomerName, &b.Status, &b.BookingDate, &b.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CreateBooking persists a booking created by the booking flow.
func (s *Service) CreateBooking(ctx context.Context, userID string, b models.Booking) (*models.Booking, error) {
	if strings.TrimSpace(b.ServiceName) == "" || strings.TrimSpace(b.CustomerName) == "" {
		return nil, errors.New("service_name and customer_name are required")
	}
	if b.Status == "" {
		b.Status = string(booking.StatusPending)
	}
	if _, err := booking.ParseStatus(b.Status); err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (id, user_id, service_name, customer_name, status, booking_date, total_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, userID, b.ServiceName, b.CustomerName, b.Status, b.BookingDate, b.TotalPrice, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &b, nil
}

// UpdateBookingStatus applies a status change after checking it is a legal
// transition from the booking's current status. The engine performs the
// same check before calling; this is the backend side of the same guard.
func (s *Service) UpdateBookingStatus(ctx context.Context, id, newStatus string) error {
	if id == "" {
		return errors.New("booking id is required")
	}
	target, err := booking.ParseStatus(newStatus)
	if err != nil {
		return err
	}

	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.New("booking not found")
		}
		return fmt.Errorf("query booking: %w", err)
	}
	current, err := booking.ParseStatus(raw)
	if err != nil {
		return err
	}

	legal := false
	for _, action := range booking.LegalActions(current) {
		if next, err := booking.Next(current, action); err == nil && next == target {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: %s -> %s", ErrRejectedTransition, current, target)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, string(target), id); err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return nil
}

func hashPassword(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

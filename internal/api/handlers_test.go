package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"beresin/internal/auth"
	"beresin/internal/booking"
	"beresin/internal/config"
	"beresin/internal/identity"
	"beresin/internal/models"
	"beresin/internal/service/marketplace"
	"beresin/internal/session"
	"beresin/internal/storage"
	"beresin/internal/store"
)

func TestHandlersEndToEndFlow(t *testing.T) {
	router, db, service, _ := newTestServer(t)
	defer db.Close()

	// Register a customer and an operator.
	custResp := doJSONRequest(t, router, http.MethodPost, "/register.php", map[string]string{
		"email": "budi@example.com", "password": "rahasia1", "name": "Budi", "phone": "0812",
	}, nil)
	assertStatus(t, custResp, http.StatusCreated)

	opResp := doJSONRequest(t, router, http.MethodPost, "/register.php", map[string]string{
		"email": "admin@beres.in", "password": "rahasia2", "name": "Admin", "role": "operator",
	}, nil)
	assertStatus(t, opResp, http.StatusCreated)

	custToken, custID := login(t, router, "budi@example.com", "rahasia1")
	opToken, opID := login(t, router, "admin@beres.in", "rahasia2")
	custHeader := map[string]string{"Authorization": "Bearer " + custToken}
	opHeader := map[string]string{"Authorization": "Bearer " + opToken}

	// Unauthenticated access is rejected.
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/get_messages.php", nil, nil), http.StatusUnauthorized)
	// Customers cannot reach operator endpoints.
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/get_bookings.php", nil, custHeader), http.StatusForbidden)

	// Customer starts a thread.
	sendResp := doJSONRequest(t, router, http.MethodPost, "/send_messages.php", map[string]string{
		"sender_id": custID, "content": "AC saya bocor", "role": "customer",
	}, custHeader)
	assertStatus(t, sendResp, http.StatusOK)

	// Spoofed sender ids are rejected.
	spoofResp := doJSONRequest(t, router, http.MethodPost, "/send_messages.php", map[string]string{
		"sender_id": opID, "content": "halo", "role": "customer",
	}, custHeader)
	assertStatus(t, spoofResp, http.StatusForbidden)

	// The customer sees their own thread.
	ownResp := doJSONRequest(t, router, http.MethodGet, "/get_messages.php", nil, custHeader)
	assertStatus(t, ownResp, http.StatusOK)
	if got := len(dataMessages(t, ownResp)); got != 1 {
		t.Fatalf("want 1 own message, got %d", got)
	}

	// The operator sees the customer in the contact list.
	contactsResp := doJSONRequest(t, router, http.MethodGet, "/get_chat_contacts.php", nil, opHeader)
	assertStatus(t, contactsResp, http.StatusOK)
	var contactsEnv struct {
		Data []models.Contact `json:"data"`
	}
	decodeJSON(t, contactsResp.Body.Bytes(), &contactsEnv)
	if len(contactsEnv.Data) != 1 || contactsEnv.Data[0].ID != custID {
		t.Fatalf("unexpected contacts: %+v", contactsEnv.Data)
	}

	// Operator replies into the customer's thread.
	replyResp := doJSONRequest(t, router, http.MethodPost, "/send_messages.php", map[string]string{
		"sender_id": opID, "receiver_id": custID, "content": "teknisi segera datang", "role": "operator",
	}, opHeader)
	assertStatus(t, replyResp, http.StatusOK)

	historyResp := doJSONRequest(t, router, http.MethodGet, "/get_chat_history.php?user_id="+custID, nil, opHeader)
	assertStatus(t, historyResp, http.StatusOK)
	history := dataMessages(t, historyResp)
	if len(history) != 2 {
		t.Fatalf("want 2 messages in thread, got %d", len(history))
	}
	if history[0].Role != models.RoleCustomer || history[1].Role != models.RoleOperator {
		t.Fatalf("unexpected thread order: %+v", history)
	}
	if history[1].ThreadOwnerID != custID {
		t.Fatalf("operator reply must land in the customer's thread, got %s", history[1].ThreadOwnerID)
	}

	// Booking lifecycle through the API.
	created, err := service.CreateBooking(context.Background(), custID, models.Booking{
		ServiceName: "Service AC", CustomerName: "Budi", BookingDate: "2025-06-01", TotalPrice: 150000,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	bookingsResp := doJSONRequest(t, router, http.MethodGet, "/get_bookings.php", nil, opHeader)
	assertStatus(t, bookingsResp, http.StatusOK)
	var bookingsEnv struct {
		Data []models.Booking `json:"data"`
	}
	decodeJSON(t, bookingsResp.Body.Bytes(), &bookingsEnv)
	if len(bookingsEnv.Data) != 1 || bookingsEnv.Data[0].Status != "Pending" {
		t.Fatalf("unexpected bookings: %+v", bookingsEnv.Data)
	}

	updateResp := doJSONRequest(t, router, http.MethodPost, "/update_booking.php", map[string]string{
		"id": created.ID, "status": "Diproses",
	}, opHeader)
	assertStatus(t, updateResp, http.StatusOK)
	assertSuccess(t, updateResp, true)

	// Illegal jump Pending-graph-wise: Diproses -> Pending is refused with
	// success=false, state unchanged.
	badResp := doJSONRequest(t, router, http.MethodPost, "/update_booking.php", map[string]string{
		"id": created.ID, "status": "Pending",
	}, opHeader)
	assertStatus(t, badResp, http.StatusOK)
	assertSuccess(t, badResp, false)

	bookingsResp = doJSONRequest(t, router, http.MethodGet, "/get_bookings.php", nil, opHeader)
	decodeJSON(t, bookingsResp.Body.Bytes(), &bookingsEnv)
	if bookingsEnv.Data[0].Status != "Diproses" {
		t.Fatalf("rejected update must not change status, got %s", bookingsEnv.Data[0].Status)
	}

	// Logout revokes the token.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/logout.php", nil, custHeader), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/get_messages.php", nil, custHeader), http.StatusUnauthorized)
}

// TestEngineAgainstBackend drives the engine-side stack (store client,
// session managers, booking console) against the real HTTP backend.
func TestEngineAgainstBackend(t *testing.T) {
	router, db, service, _ := newTestServer(t)
	defer db.Close()
	srv := httptest.NewServer(router)
	defer srv.Close()

	register(t, router, "sari@example.com", "rahasia1", "Sari", "customer")
	register(t, router, "admin@beres.in", "rahasia2", "Admin", "operator")

	// Customer signs in through the remote identity provider.
	custClient := store.New(srv.URL, "")
	custIdentity := identity.NewRemote(custClient)
	custPrincipal, err := custIdentity.SignIn(context.Background(), "sari@example.com", "rahasia1")
	if err != nil {
		t.Fatalf("customer sign-in: %v", err)
	}

	widget := session.NewCustomerWidget(custClient, custIdentity, 25*time.Millisecond, nil)
	defer widget.Close()
	widget.Open(context.Background())
	if err := widget.SendReply(context.Background(), "Tolong bersihkan AC"); err != nil {
		t.Fatalf("widget send: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(widget.Messages()) == 1 })

	// Operator signs in and works the console.
	opClient := store.New(srv.URL, "")
	opIdentity := identity.NewRemote(opClient)
	if _, err := opIdentity.SignIn(context.Background(), "admin@beres.in", "rahasia2"); err != nil {
		t.Fatalf("operator sign-in: %v", err)
	}

	console := session.NewOperatorConsole(opClient, opIdentity, 25*time.Millisecond, nil)
	defer console.Close()
	console.Open(context.Background())
	waitFor(t, 2*time.Second, func() bool { return len(console.Contacts()) == 1 })
	if got := console.Contacts()[0].ID; got != custPrincipal.ID {
		t.Fatalf("contact list: want %s, got %s", custPrincipal.ID, got)
	}

	console.SelectContact(context.Background(), console.Contacts()[0])
	waitFor(t, 2*time.Second, func() bool { return len(console.Messages()) == 1 })

	if err := console.SendReply(context.Background(), "Baik, kami jadwalkan besok"); err != nil {
		t.Fatalf("console reply: %v", err)
	}
	if got := len(console.Messages()); got != 2 {
		t.Fatalf("console: want 2 messages after reply, got %d", got)
	}
	// The customer's polling picks the reply up within a tick or two.
	waitFor(t, 2*time.Second, func() bool { return len(widget.Messages()) == 2 })

	// Booking console against the same backend.
	created, err := service.CreateBooking(context.Background(), custPrincipal.ID, models.Booking{
		ServiceName: "Cuci Sofa", CustomerName: "Sari", BookingDate: "2025-07-10", TotalPrice: 90000,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	bookings := booking.NewConsole(opClient, 25*time.Millisecond)
	bookings.Open(context.Background())
	defer bookings.Close()
	waitFor(t, 2*time.Second, func() bool { return len(bookings.Bookings()) == 1 })
	if err := bookings.ApplyTransition(context.Background(), created.ID, booking.ActionAdvance); err != nil {
		t.Fatalf("advance: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return bookings.Bookings()[0].Status == "Diproses" })

	// A raw illegal update slips past no local guard here; the backend
	// refuses it and the client reports a rejected transition.
	err = opClient.UpdateBookingStatus(context.Background(), created.ID, booking.StatusPending)
	if _, ok := err.(*store.RejectedTransitionError); !ok {
		t.Fatalf("want RejectedTransitionError from backend, got %v", err)
	}

	// Sign-out tears the session down server-side.
	if err := custIdentity.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := custClient.ListOwn(context.Background()); err == nil {
		t.Fatalf("expected error after sign-out")
	}
}

// TestCSRFGuardsCookieAuth covers the cookie-authenticated path: mutating
// requests need the double-submit CSRF header, reads and bearer requests
// do not.
func TestCSRFGuardsCookieAuth(t *testing.T) {
	router, db, _, authService := newTestServer(t)
	defer db.Close()

	register(t, router, "cici@example.com", "rahasia1", "Cici", "customer")
	loginResp := doJSONRequest(t, router, http.MethodPost, "/login.php", map[string]string{
		"email": "cici@example.com", "password": "rahasia1",
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var body struct {
		Data struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &body)

	var authCookie, csrfCookie *http.Cookie
	for _, ck := range loginResp.Result().Cookies() {
		switch ck.Name {
		case authService.AuthCookieName():
			authCookie = ck
		case authService.CSRFCookieName():
			csrfCookie = ck
		}
	}
	if authCookie == nil || csrfCookie == nil {
		t.Fatalf("login must set auth and csrf cookies, got %v", loginResp.Result().Cookies())
	}
	cookieHeader := authCookie.Name + "=" + authCookie.Value + "; " + csrfCookie.Name + "=" + csrfCookie.Value
	payload := map[string]string{"sender_id": body.Data.User.ID, "content": "halo", "role": "customer"}

	// Missing CSRF header.
	resp := doJSONRequest(t, router, http.MethodPost, "/send_messages.php", payload, map[string]string{
		"Cookie": cookieHeader,
	})
	assertStatus(t, resp, http.StatusForbidden)

	// Mismatched CSRF header.
	resp = doJSONRequest(t, router, http.MethodPost, "/send_messages.php", payload, map[string]string{
		"Cookie":                      cookieHeader,
		authService.CSRFHeaderName(): "not-the-cookie-value",
	})
	assertStatus(t, resp, http.StatusForbidden)

	// Matching header passes.
	resp = doJSONRequest(t, router, http.MethodPost, "/send_messages.php", payload, map[string]string{
		"Cookie":                      cookieHeader,
		authService.CSRFHeaderName(): csrfCookie.Value,
	})
	assertStatus(t, resp, http.StatusOK)

	// Reads over cookie auth are exempt.
	resp = doJSONRequest(t, router, http.MethodGet, "/get_messages.php", nil, map[string]string{
		"Cookie": cookieHeader,
	})
	assertStatus(t, resp, http.StatusOK)
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *marketplace.Service, *auth.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	service := marketplace.NewService(db)
	authService := auth.NewService(db, nil, time.Hour)
	handler := NewHandler(service, authService)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, service, authService
}

func register(t *testing.T, router *gin.Engine, email, password, name, role string) {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost, "/register.php", map[string]string{
		"email": email, "password": password, "name": name, "role": role,
	}, nil)
	assertStatus(t, resp, http.StatusCreated)
}

func login(t *testing.T, router *gin.Engine, email, password string) (token, userID string) {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost, "/login.php", map[string]string{
		"email": email, "password": password,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Data struct {
			Token string `json:"token"`
			User  struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Data.Token == "" || body.Data.User.ID == "" {
		t.Fatalf("missing token or user id in login response")
	}
	return body.Data.Token, body.Data.User.ID
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeJSON(t *testing.T, raw []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s: %v", string(raw), err)
	}
}

func assertStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("want status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}

func assertSuccess(t *testing.T, resp *httptest.ResponseRecorder, want bool) {
	t.Helper()
	var env struct {
		Success bool `json:"success"`
	}
	decodeJSON(t, resp.Body.Bytes(), &env)
	if env.Success != want {
		t.Fatalf("want success=%v, got %s", want, resp.Body.String())
	}
}

func dataMessages(t *testing.T, resp *httptest.ResponseRecorder) []models.Message {
	t.Helper()
	var env struct {
		Data []models.Message `json:"data"`
	}
	decodeJSON(t, resp.Body.Bytes(), &env)
	return env.Data
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"beresin/internal/auth"
	"beresin/internal/models"
	"beresin/internal/service/marketplace"
)

// Handler wires the HTTP routes consumed by the customer widget and the
// operator console to the marketplace service.
type Handler struct {
	service *marketplace.Service
	auth    *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(service *marketplace.Service, authService *auth.Service) *Handler {
	return &Handler{service: service, auth: authService}
}

// RegisterRoutes attaches all HTTP routes to the router. The .php paths are
// kept verbatim so existing clients keep working against this backend.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/register.php", h.register)
	router.POST("/login.php", h.login)

	authMW := h.auth.Middleware()
	csrfMW := h.auth.CSRFMiddleware()

	authed := router.Group("", authMW, csrfMW)
	authed.POST("/logout.php", h.logout)
	authed.GET("/get_messages.php", h.getOwnMessages)
	authed.POST("/send_messages.php", h.sendMessage)

	operator := authed.Group("", auth.RequireRole(models.RoleOperator))
	operator.GET("/get_chat_history.php", h.getChatHistory)
	operator.GET("/get_chat_contacts.php", h.getChatContacts)
	operator.GET("/get_bookings.php", h.getBookings)
	operator.POST("/update_booking.php", h.updateBooking)
}

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondAck(c *gin.Context, status int) {
	c.JSON(status, gin.H{"success": true})
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.service.RegisterUser(c.Request.Context(), req.Email, req.Password, req.Name, req.Phone, models.Role(req.Role))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"role":       user.Role,
		"created_at": user.CreatedAt,
	}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, http.StatusUnauthorized, err.Error())
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "issue token failed")
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "issue token failed")
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"token": authToken,
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"role":  user.Role,
		},
	}})
}

func (h *Handler) logout(c *gin.Context) {
	token, _ := auth.AuthTokenFromContext(c)
	if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
		respondError(c, http.StatusInternalServerError, "logout failed")
		return
	}
	h.clearAuthCookies(c)
	respondAck(c, http.StatusOK)
}

// getOwnMessages serves the customer widget: the caller's own thread.
func (h *Handler) getOwnMessages(c *gin.Context) {
	principal, _ := auth.PrincipalFromContext(c)
	messages, err := h.service.ListThread(c.Request.Context(), principal.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load messages")
		return
	}
	respondData(c, messages)
}

// getChatHistory serves the operator console: one selected contact's thread.
func (h *Handler) getChatHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		respondError(c, http.StatusBadRequest, "user_id is required")
		return
	}
	messages, err := h.service.ListThread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load messages")
		return
	}
	respondData(c, messages)
}

type sendMessageRequest struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Role       string `json:"role"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	principal, _ := auth.PrincipalFromContext(c)
	if req.SenderID != principal.ID {
		respondError(c, http.StatusForbidden, "sender_id does not match the authenticated user")
		return
	}
	if models.Role(req.Role) != principal.Role {
		respondError(c, http.StatusForbidden, "role does not match the authenticated user")
		return
	}
	msg, err := h.service.SaveMessage(c.Request.Context(), principal, req.ReceiverID, req.Content)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	respondData(c, msg)
}

func (h *Handler) getChatContacts(c *gin.Context) {
	contacts, err := h.service.ListContacts(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load contacts")
		return
	}
	respondData(c, contacts)
}

func (h *Handler) getBookings(c *gin.Context) {
	bookings, err := h.service.ListBookings(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load bookings")
		return
	}
	respondData(c, bookings)
}

type updateBookingRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) updateBooking(c *gin.Context) {
	var req updateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.service.UpdateBookingStatus(c.Request.Context(), req.ID, req.Status)
	if err != nil {
		if errors.Is(err, marketplace.ErrRejectedTransition) {
			// Business rejection, not a transport failure: 200 with
			// success=false so clients can surface the message.
			respondError(c, http.StatusOK, err.Error())
			return
		}
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	respondAck(c, http.StatusOK)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	maxAge := int(h.auth.TokenTTL().Seconds())
	c.SetCookie(h.auth.AuthCookieName(), authToken, maxAge, "/", "", false, true)
	c.SetCookie(h.auth.CSRFCookieName(), csrfToken, maxAge, "/", "", false, false)
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	c.SetCookie(h.auth.AuthCookieName(), "", -1, "/", "", false, true)
	c.SetCookie(h.auth.CSRFCookieName(), "", -1, "/", "", false, false)
}

package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storefront-dev/storefront/pkg/notification"
	"github.com/storefront-dev/storefront/pkg/order"
	"github.com/storefront-dev/storefront/pkg/realtime"
	"github.com/storefront-dev/storefront/pkg/session"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "Malformed request", nil)
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(body.Email)]
	var u session.User
	var approved bool
	if ok {
		u, approved = acct.user, acct.approved
		ok = acct.password == body.Password
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if !approved {
		writeError(w, http.StatusForbidden, "Your vendor application is awaiting approval", nil)
		return
	}

	data, err := s.issuePair(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue token", nil)
		return
	}
	data["user"] = u
	writeJSON(w, http.StatusOK, data, "Login successful")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		Password     string `json:"password"`
		Phone        string `json:"phone"`
		Role         string `json:"role"`
		BusinessName string `json:"businessName"`
	}
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "Malformed request", nil)
		return
	}

	details := map[string][]string{}
	if body.Email == "" {
		details["email"] = append(details["email"], "Email is required")
	}
	if len(body.Password) < 6 {
		details["password"] = append(details["password"], "Password must be at least 6 characters")
	}
	role, err := session.ParseRole(body.Role)
	if body.Role == "" {
		role, err = session.RoleCustomer, nil
	}
	if err != nil || role == session.RoleAdmin {
		details["role"] = append(details["role"], "Role must be customer or vendor")
	}
	if len(details) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "Validation failed", details)
		return
	}

	u := session.User{
		ID:    uuid.NewString(),
		Name:  body.Name,
		Email: body.Email,
		Role:  role,
		Phone: body.Phone,
	}
	key := strings.ToLower(body.Email)

	s.mu.Lock()
	if _, exists := s.accounts[key]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Email already registered", map[string][]string{
			"email": {"Email already registered"},
		})
		return
	}
	vendor := role == session.RoleVendor
	s.accounts[key] = &account{user: u, password: body.Password, approved: !vendor}
	s.mu.Unlock()

	if vendor {
		writeJSON(w, http.StatusCreated, map[string]any{
			"user":             u,
			"requiresApproval": true,
		}, "Application received; an admin will review it")
		return
	}

	data, err := s.issuePair(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue token", nil)
		return
	}
	data["user"] = u
	writeJSON(w, http.StatusCreated, data, "Registration successful")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decode(r, &body)

	s.mu.Lock()
	delete(s.refresh, body.RefreshToken)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, nil, "Logged out")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(r, &body) || body.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, "Refresh token is required", nil)
		return
	}

	s.mu.Lock()
	uid, ok := s.refresh[body.RefreshToken]
	delete(s.refresh, body.RefreshToken)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "Refresh token is invalid or expired", nil)
		return
	}
	data, err := s.issuePair(uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue token", nil)
		return
	}
	writeJSON(w, http.StatusOK, data, "")
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(r, &body) || body.Email == "" {
		writeError(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{
			"email": {"Email is required"},
		})
		return
	}
	// Unknown addresses get the same answer.
	writeJSON(w, http.StatusOK, nil, "If the address exists, a reset link was sent")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "Malformed request", nil)
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, "Reset token is invalid or expired", nil)
		return
	}
	if len(body.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{
			"password": {"Password must be at least 6 characters"},
		})
		return
	}
	writeJSON(w, http.StatusOK, nil, "Password updated")
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decode(r, &body) || body.Token == "" {
		writeError(w, http.StatusBadRequest, "Verification token is invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, nil, "Email verified")
}

func (s *Server) handleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if !decode(r, &body) || body.Code != PhoneCode {
		writeError(w, http.StatusBadRequest, "Verification code is invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, nil, "Phone verified")
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	s.mu.Lock()
	list := append([]notification.Notification(nil), s.notifications[u.ID]...)
	s.mu.Unlock()

	sortNotifications(list)
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list}, "")
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	s.mu.Lock()
	n := 0
	for _, item := range s.notifications[u.ID] {
		if !item.IsRead {
			n++
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": n}, "")
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	found := false
	list := s.notifications[u.ID]
	for i := range list {
		if list[i].ID == id {
			list[i].IsRead = true
			list[i].Version++
			found = true
		}
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "Notification not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, nil, "")
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	s.mu.Lock()
	list := s.notifications[u.ID]
	for i := range list {
		if !list[i].IsRead {
			list[i].IsRead = true
			list[i].Version++
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, nil, "All notifications marked read")
}

func visible(u session.User, o *order.Order) bool {
	switch u.Role {
	case session.RoleAdmin:
		return true
	case session.RoleVendor:
		return o.Vendor.ID == u.ID
	default:
		return o.Customer.ID == u.ID
	}
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	s.mu.Lock()
	list := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if visible(u, o) {
			list = append(list, *o)
		}
	}
	s.mu.Unlock()

	sortOrders(list)
	writeJSON(w, http.StatusOK, list, "")
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id := chi.URLParam(r, "id")

	var body struct {
		Status string `json:"status"`
	}
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "Malformed request", nil)
		return
	}
	target, err := order.ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{
			"status": {err.Error()},
		})
		return
	}

	s.mu.Lock()
	o, ok := s.orders[id]
	if !ok || !visible(u, o) {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Order not found", nil)
		return
	}
	if o.Status == target {
		// Repeating the last change succeeds without side effects.
		updated := *o
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, updated, "")
		return
	}
	if err := order.Validate(u.Role, *o, target); err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	o.Status = target
	o.UpdatedAt = s.now()
	updated := *o
	s.mu.Unlock()

	s.announce(updated)
	writeJSON(w, http.StatusOK, updated, "Order status updated")
}

// announce pushes the change to both parties and leaves the customer a
// notification, the way the production backend does.
func (s *Server) announce(o order.Order) {
	data, _ := json.Marshal(map[string]any{
		"orderId":       o.ID,
		"status":        o.Status,
		"paymentStatus": o.PaymentStatus,
		"updatedAt":     o.UpdatedAt,
	})
	for _, uid := range []string{o.Customer.ID, o.Vendor.ID} {
		if uid != "" {
			s.Push(uid, realtime.EventOrderUpdate, "status_changed", data)
		}
	}
	if o.Customer.ID != "" {
		s.Notify(o.Customer.ID, notification.Notification{
			Type:    "order_status",
			Title:   "Order update",
			Message: "Your order is now " + string(o.Status),
			Data:    data,
		})
	}
}

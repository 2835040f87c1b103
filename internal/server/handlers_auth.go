package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/identity"
)

// userView is the admin-facing user listing shape.
type userView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"displayName,omitempty"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt"`
	IsDisabled      bool       `json:"isDisabled"`
	HasPassword     bool       `json:"hasPassword"`
	LastLoginAt     *time.Time `json:"lastLoginAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	Roles           []string   `json:"roles"`
}

func newUserView(u *models.User) userView {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Name)
	}
	return userView{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		EmailVerifiedAt: u.EmailVerifiedAt,
		IsDisabled:      u.IsDisabled,
		HasPassword:     u.HasCredentials(),
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
		Roles:           roles,
	}
}

// roleView is the admin-facing role listing shape.
type roleView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	UsersCount  int      `json:"usersCount"`
}

func newRoleView(r *models.Role) roleView {
	perms := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, p.Code)
	}
	return roleView{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: perms,
		UsersCount:  r.UsersCount,
	}
}

// HandleBootstrapStatus serves GET /auth/bootstrap/status.
func HandleBootstrapStatus(ids *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		needs, err := ids.NeedsBootstrap(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"needsBootstrap": needs})
	}
}

// HandleBootstrapClaim serves POST /auth/bootstrap/claim.
func HandleBootstrapClaim(ids *identity.Service) http.HandlerFunc {
	type request struct {
		Token       string `json:"token"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.Token == "" || req.Email == "" || req.Password == "" {
			writeBadRequest(w, "token, email and password are required")
			return
		}
		if err := ids.ClaimBootstrap(r.Context(), req.Token, req.Email, req.Password, req.DisplayName); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// HandleLogin serves POST /auth/login.
func HandleLogin(ids *identity.Service) http.HandlerFunc {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	type response struct {
		Token     string             `json:"token"`
		ExpiresAt time.Time          `json:"expiresAt"`
		User      *identity.Snapshot `json:"user"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeBadRequest(w, "email and password are required")
			return
		}

		ip := clientIP(r)
		ua := userAgent(r)
		res, err := ids.Login(r.Context(), req.Email, req.Password, ip, ua)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response{
			Token:     res.Token,
			ExpiresAt: res.ExpiresAt,
			User:      res.User,
		})
	}
}

// HandleMe serves GET /auth/me; RequireAuth already resolved the snapshot.
func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SnapshotFrom(r.Context()))
	}
}

// HandleLogout serves POST /auth/logout.
func HandleLogout(ids *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ids.Logout(r.Context(), bearerToken(r)); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// HandleCreateUser serves POST /auth/users (admin).
func HandleCreateUser(ids *identity.Service) http.HandlerFunc {
	type request struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}
	type response struct {
		ID                  string    `json:"id"`
		Email               string    `json:"email"`
		SetupToken          string    `json:"setupToken"`
		SetupTokenExpiresAt time.Time `json:"setupTokenExpiresAt"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		created, err := ids.CreateUser(r.Context(), req.Email, req.DisplayName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, response{
			ID:                  created.ID,
			Email:               created.Email,
			SetupToken:          created.SetupToken,
			SetupTokenExpiresAt: created.SetupTokenExpiresAt,
		})
	}
}

// HandleListUsers serves GET /auth/users (admin).
func HandleListUsers(ids *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := ids.ListUsers(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]userView, 0, len(users))
		for i := range users {
			views = append(views, newUserView(&users[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": views})
	}
}

// HandleReplaceUserRoles serves POST /auth/users/{userID}/roles (admin).
func HandleReplaceUserRoles(ids *identity.Service) http.HandlerFunc {
	type request struct {
		RoleNames []string `json:"roleNames"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		updated, err := ids.ReplaceUserRoles(r.Context(), chi.URLParam(r, "userID"), req.RoleNames)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserView(updated))
	}
}

// HandleListRoles serves GET /auth/roles (admin).
func HandleListRoles(ids *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := ids.ListRoles(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]roleView, 0, len(roles))
		for i := range roles {
			views = append(views, newRoleView(&roles[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": views})
	}
}

// HandleCreateRole serves POST /auth/roles (admin).
func HandleCreateRole(ids *identity.Service) http.HandlerFunc {
	type request struct {
		Name            string   `json:"name"`
		Description     string   `json:"description"`
		PermissionCodes []string `json:"permissionCodes"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.Name == "" {
			writeBadRequest(w, "name is required")
			return
		}
		role, err := ids.CreateRole(r.Context(), req.Name, req.Description, req.PermissionCodes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newRoleView(role))
	}
}

// HandleSetRolePermissions serves POST /auth/roles/{roleName}/permissions (admin).
func HandleSetRolePermissions(ids *identity.Service) http.HandlerFunc {
	type request struct {
		PermissionCodes []string `json:"permissionCodes"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		role, err := ids.SetRolePermissions(r.Context(), chi.URLParam(r, "roleName"), req.PermissionCodes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRoleView(role))
	}
}

// HandleListPermissions serves GET /auth/permissions (admin).
func HandleListPermissions(ids *identity.Service) http.HandlerFunc {
	type permissionView struct {
		ID          string `json:"id"`
		Code        string `json:"code"`
		Description string `json:"description,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		perms, err := ids.ListPermissions(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]permissionView, 0, len(perms))
		for _, p := range perms {
			views = append(views, permissionView{ID: p.ID, Code: p.Code, Description: p.Description})
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": views})
	}
}

// HandleSetPassword serves POST /auth/set-password.
func HandleSetPassword(ids *identity.Service) http.HandlerFunc {
	type request struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.Token == "" || req.Password == "" {
			writeBadRequest(w, "token and password are required")
			return
		}
		if err := ids.SetPassword(r.Context(), req.Token, req.Password); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func clientIP(r *http.Request) *string {
	if r.RemoteAddr == "" {
		return nil
	}
	addr := r.RemoteAddr
	return &addr
}

func userAgent(r *http.Request) *string {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		return nil
	}
	return &ua
}

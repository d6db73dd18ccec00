package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/magadiflo/usersvc/internal/services"
)

// UserHandler provides HTTP handlers for users and roles.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user and role routes on the given router. Access
// rules are enforced by the middleware in front of it.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)

	r.Get("/users", handler.ListUsers)
	r.Post("/user/save", handler.SaveUser)
	r.Get("/user/{username}", handler.GetUser)
	r.Get("/roles", handler.ListRoles)
	r.Post("/role/save", handler.SaveRole)
	r.Post("/role/addtouser", handler.AddRoleToUser)
	r.Get("/role/{name}", handler.GetRole)
}

type SaveUserRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type SaveRoleRequest struct {
	Name string `json:"name"`
}

type RoleToUserRequest struct {
	Username string `json:"username"`
	RoleName string `json:"roleName"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.GetUsers(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, err, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req SaveUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.SaveUser(r.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err, "failed to save user")
		return
	}

	w.Header().Set("Location", "/api/user/"+url.PathEscape(user.Username))
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.userService.GetRoles(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list roles")
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (h *UserHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.userService.GetRole(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err, "failed to fetch role")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *UserHandler) SaveRole(w http.ResponseWriter, r *http.Request) {
	var req SaveRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	role, err := h.userService.SaveRole(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err, "failed to save role")
		return
	}

	w.Header().Set("Location", "/api/role/"+url.PathEscape(role.Name))
	writeJSON(w, http.StatusCreated, role)
}

func (h *UserHandler) AddRoleToUser(w http.ResponseWriter, r *http.Request) {
	var req RoleToUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.AddRoleToUser(r.Context(), req.Username, req.RoleName); err != nil {
		writeServiceError(w, err, "failed to add role to user")
		return
	}
	w.WriteHeader(http.StatusOK)
}

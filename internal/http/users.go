package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kompanion/kompanion/internal/audit"
	"github.com/kompanion/kompanion/internal/auth"
	"github.com/kompanion/kompanion/internal/database/users"
)

// UsersController is the admin-only account management API.
type UsersController struct {
	repo        *users.Repository
	authService *auth.Service
	auditor     *audit.Service
}

func NewUsersController(repo *users.Repository, authService *auth.Service, auditor *audit.Service) *UsersController {
	return &UsersController{
		repo:        repo,
		authService: authService,
		auditor:     auditor,
	}
}

// List handles GET /api/users.
func (u *UsersController) List(c *gin.Context) {
	allUsers, err := u.repo.GetAllUsers()
	if err != nil {
		respondInternalError(c, err, "list users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": allUsers})
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// Create handles POST /api/users.
func (u *UsersController) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "username and password are required")
		return
	}

	var err error
	if req.IsAdmin {
		_, err = u.authService.CreateAdmin(req.Username, req.Password)
	} else {
		_, err = u.authService.RegisterKosyncUser(req.Username, req.Password)
	}
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			respondError(c, http.StatusConflict, "username is already taken")
		case errors.Is(err, auth.ErrUsernameInvalid):
			respondBadRequest(c, err.Error())
		default:
			respondInternalError(c, err, "create user")
		}
		return
	}

	created, err := u.repo.GetUserByUsername(req.Username)
	if err != nil {
		respondInternalError(c, err, "create user")
		return
	}

	if u.auditor != nil {
		u.auditor.LogRegister(created.ID, created.Username, c.ClientIP())
	}
	respondCreated(c, created)
}

// Deactivate handles POST /api/users/:id/deactivate.
func (u *UsersController) Deactivate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if id == GetUserID(c) {
		respondBadRequest(c, "cannot deactivate your own account")
		return
	}

	if err := u.repo.DeactivateUser(id); err != nil {
		respondInternalError(c, err, "deactivate user")
		return
	}
	respondSuccess(c, "user deactivated")
}

// Delete handles DELETE /api/users/:id.
func (u *UsersController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if id == GetUserID(c) {
		respondBadRequest(c, "cannot delete your own account")
		return
	}

	user, err := u.repo.GetUserByID(id)
	if err != nil {
		respondNotFound(c, "user")
		return
	}

	if err := u.repo.DeleteUser(id); err != nil {
		respondInternalError(c, err, "delete user")
		return
	}

	if u.auditor != nil {
		u.auditor.LogDelete(GetUserID(c), "user", user.ID, user.Username)
	}
	respondSuccess(c, "user deleted")
}

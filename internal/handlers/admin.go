package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/expense-tracker/authgate/internal/middleware"
	"github.com/expense-tracker/authgate/internal/services"
	"github.com/expense-tracker/authgate/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler serves the admin-only user directory endpoints. Routes must
// be mounted behind RequireBearer and RequireAdmin.
type AdminHandler struct {
	userService *services.UserService
	logger      *zap.Logger
}

func NewAdminHandler(us *services.UserService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{userService: us, logger: logger}
}

type listUsersResponse struct {
	Users      []userResponse         `json:"users"`
	Pagination store.PaginationResult `json:"pagination"`
}

// ListUsers godoc
//
//	@Summary	List users
//	@Tags		Admin
//	@Produce	json
//	@Security	BearerAuth
//	@Param		page		query		int		false	"Page, 1-based"
//	@Param		page_size	query		int		false	"Page size (max 100)"
//	@Param		search		query		string	false	"Match email or name"
//	@Success	200			{object}	listUsersResponse
//	@Failure	403			{object}	object{error=string,error_description=string}
//	@Router		/api/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	params := store.NewPaginationParams(page, pageSize, c.Query("search"))

	users, pagination, err := h.userService.ListUsers(c.Request.Context(), params)
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		oauthError(c, http.StatusInternalServerError, services.OAuthErrServerError, "")
		return
	}

	resp := listUsersResponse{Users: make([]userResponse, 0, len(users)), Pagination: pagination}
	for i := range users {
		resp.Users = append(resp.Users, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, resp)
}

type elevateRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

// Elevate godoc
//
//	@Summary		Grant or revoke admin
//	@Description	Sets is_admin on the target user; defaults to granting.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"User id"
//	@Param			body	body		elevateRequest	false	"{is_admin: false} demotes"
//	@Success		200		{object}	userResponse
//	@Failure		403		{object}	object{error=string,error_description=string}
//	@Failure		404		{object}	object{error=string,error_description=string}
//	@Failure		409		{object}	object{error=string,error_description=string}	"Last admin"
//	@Router			/api/admin/users/{id}/elevate [post]
func (h *AdminHandler) Elevate(c *gin.Context) {
	var req elevateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		oauthError(c, http.StatusBadRequest, services.OAuthErrInvalidRequest, "Body must be {\"is_admin\": bool}")
		return
	}
	isAdmin := true
	if req.IsAdmin != nil {
		isAdmin = *req.IsAdmin
	}

	user, err := h.userService.SetAdmin(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"), isAdmin)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrForbidden):
			oauthError(c, http.StatusForbidden, "forbidden", "Admin privileges required")
		case errors.Is(err, services.ErrUserNotFound):
			oauthError(c, http.StatusNotFound, "not_found", "User not found")
		case errors.Is(err, services.ErrLastAdmin):
			oauthError(c, http.StatusConflict, "last_admin", "At least one admin must remain")
		default:
			h.logger.Error("set admin", zap.String("target", c.Param("id")), zap.Error(err))
			oauthError(c, http.StatusInternalServerError, services.OAuthErrServerError, "")
		}
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

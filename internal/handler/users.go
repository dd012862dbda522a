package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// UserHandler serves profile and user administration endpoints.
type UserHandler struct {
	Users      UserStore
	BcryptCost int
}

func NewUserHandler(users UserStore, bcryptCost int) *UserHandler {
	return &UserHandler{Users: users, BcryptCost: bcryptCost}
}

type updateUserReq struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6"`
	Role     *string `json:"role" validate:"omitempty,oneof=user admin"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	Address  *string `json:"address" validate:"omitempty,max=255"`
}

// blankToNil drops fields that cannot be emptied.
func blankToNil(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

// bindUpdate binds and validates an update body.  A non-empty message is a
// 400 response for the caller to write.
func (h *UserHandler) bindUpdate(c echo.Context) (repository.UserUpdate, string, error) {
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return repository.UserUpdate{}, "invalid request body", nil
	}
	req.Name, req.Email, req.Password = blankToNil(req.Name), blankToNil(req.Email), blankToNil(req.Password)
	if req.Email != nil {
		e := repository.NormalizeEmail(*req.Email)
		req.Email = &e
	}

	if err := c.Validate(&req); err != nil {
		fields := utils.FieldErrors(err)
		switch {
		case fields["email"] != "":
			return repository.UserUpdate{}, "invalid email format", nil
		case fields["password"] != "":
			return repository.UserUpdate{}, "password must be at least 6 characters", nil
		case fields["role"] != "":
			return repository.UserUpdate{}, "invalid role. allowed: user, admin", nil
		}
		return repository.UserUpdate{}, "", validationError(err)
	}
	return repository.UserUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Phone:    req.Phone,
		Address:  req.Address,
	}, "", nil
}

// update applies in to user id and writes the response.
func (h *UserHandler) update(c echo.Context, id uint64, in repository.UserUpdate, msg string) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.Update(ctx, id, in, h.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return fail(c, http.StatusNotFound, "user not found")
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "email is already registered")
	case err != nil:
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"message": msg, "user": u})
}

// Profile returns the authenticated user.
func (h *UserHandler) Profile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, http.StatusNotFound, "user not found")
		}
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"user": u})
}

// UpdateProfile lets the authenticated user edit their own account.  The
// role cannot be changed here.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	in, msg, err := h.bindUpdate(c)
	if err != nil {
		return err
	}
	if msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}
	if in.Role != nil && !isAdmin(c) {
		return fail(c, http.StatusForbidden, "only an admin can change roles")
	}
	return h.update(c, uid, in, "profile updated successfully")
}

// List returns every user (admin).
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"users": users, "count": len(users)})
}

// Get returns one user (admin).
func (h *UserHandler) Get(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, http.StatusNotFound, "user not found")
		}
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"user": u})
}

// Update edits a user.  Users may edit themselves; admins may edit anyone
// and are the only ones allowed to change a role.
func (h *UserHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	admin := isAdmin(c)
	if id != uid && !admin {
		return fail(c, http.StatusForbidden, "you can only update your own profile")
	}
	in, msg, err := h.bindUpdate(c)
	if err != nil {
		return err
	}
	if msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}
	if in.Role != nil && !admin {
		return fail(c, http.StatusForbidden, "only an admin can change roles")
	}
	return h.update(c, id, in, "user updated successfully")
}

// Delete removes a user (admin).
func (h *UserHandler) Delete(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	if uid, err := getUserID(c); err == nil && uid == id {
		return fail(c, http.StatusBadRequest, "you cannot delete your own account")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	switch err := h.Users.Delete(ctx, id); {
	case errors.Is(err, repository.ErrUserNotFound):
		return fail(c, http.StatusNotFound, "user not found")
	case errors.Is(err, repository.ErrConflict):
		return fail(c, http.StatusConflict, "user has orders and cannot be deleted")
	case err != nil:
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"message": "user deleted successfully"})
}

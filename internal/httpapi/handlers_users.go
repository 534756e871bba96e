package httpapi

import (
	"errors"
	"net/http"

	"advent/internal/auth"
	"advent/internal/authz"
	"advent/internal/db"
	"advent/internal/validate"
)

type userDTO struct {
	UID   int64  `json:"uid"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

type addUserRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

func (r *addUserRequest) validate() error {
	name, err := validate.Username(r.User)
	if err != nil {
		return err
	}
	r.User = name
	return validate.Password(r.Password)
}

// modifyUserRequest needs both fields present. An empty password keeps
// the current one.
type modifyUserRequest struct {
	Admin    *bool   `json:"admin"`
	Password *string `json:"password"`
}

func (r *modifyUserRequest) validate() error {
	if r.Admin == nil || r.Password == nil {
		return errors.New("admin and password are required")
	}
	if *r.Password != "" {
		return validate.Password(*r.Password)
	}
	return nil
}

func (s *Server) usersResponse(c *call) Response {
	users, err := s.db.ListUsers(c.r.Context())
	if err != nil {
		return s.fail(c, "list users", err)
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userDTO{UID: u.UID, Name: u.Name, Admin: u.Admin})
	}
	return jsonResponse(http.StatusOK, out)
}

func (s *Server) handleListUsers(c *call) Response {
	return s.usersResponse(c)
}

// handleAddUser creates a non-admin account. Only admins may do so unless
// open registration is configured.
func (s *Server) handleAddUser(c *call) Response {
	ctx := c.r.Context()
	if !s.openRegistration && !s.authz.IsAdmin(ctx, c.uid) {
		return forbidden("admin required")
	}
	var req addUserRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "add user", err)
	}
	if _, found, err := s.db.GetUserByName(ctx, req.User); err != nil {
		return s.fail(c, "add user", err)
	} else if found {
		return errorResponse(http.StatusConflict, "user already exists")
	}
	h, err := auth.HashPassword(req.Password, s.hash)
	if err != nil {
		return s.fail(c, "hash password", err)
	}
	uid, err := s.db.CreateUser(ctx, req.User, h, false)
	if errors.Is(err, db.ErrConflict) {
		return errorResponse(http.StatusConflict, "user already exists")
	}
	if err != nil {
		return s.fail(c, "add user", err)
	}
	s.log.InfoContext(ctx, "user created", "uid", uid, "by", c.uid)
	return s.usersResponse(c)
}

// handleModifyUser sets the admin flag and optionally the password of the
// uid target. Protected targets keep the admin flag, and only the admin
// account may change its own password.
func (s *Server) handleModifyUser(c *call) Response {
	target, ok := queryID(c.r, "uid")
	if !ok {
		return badRequest("uid is required")
	}
	var req modifyUserRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "modify user", err)
	}
	ctx := c.r.Context()
	u, found, err := s.db.GetUserByID(ctx, target)
	if err != nil {
		return s.fail(c, "modify user", err)
	}
	if !found {
		return badRequest("unknown user")
	}

	admin := *req.Admin
	if s.authz.IsProtectedTarget(ctx, target, c.uid) {
		admin = true
	}
	hash := ""
	if *req.Password != "" {
		if u.Name == authz.AdminAccount && !s.authz.IsSelfOrAdmin(ctx, target, c.uid) {
			return forbidden("only the admin account may change its password")
		}
		if hash, err = auth.HashPassword(*req.Password, s.hash); err != nil {
			return s.fail(c, "hash password", err)
		}
	}
	updated, err := s.db.UpdateUser(ctx, target, admin, hash)
	if err != nil {
		return s.fail(c, "modify user", err)
	}
	if !updated {
		return badRequest("unknown user")
	}
	s.log.InfoContext(ctx, "user modified", "uid", target, "by", c.uid, "admin", admin, "password_changed", hash != "")
	return s.usersResponse(c)
}

// handleDeleteUser removes a user and their comments. Neither the requester
// nor the admin account can be deleted.
func (s *Server) handleDeleteUser(c *call) Response {
	target, ok := queryID(c.r, "uid")
	if !ok {
		return badRequest("uid is required")
	}
	ctx := c.r.Context()
	if s.authz.IsProtectedTarget(ctx, target, c.uid) {
		return forbidden("user cannot be deleted")
	}
	deleted, err := s.db.DeleteUser(ctx, target)
	if err != nil {
		return s.fail(c, "delete user", err)
	}
	if !deleted {
		return badRequest("unknown user")
	}
	s.log.InfoContext(ctx, "user deleted", "uid", target, "by", c.uid)
	return s.usersResponse(c)
}

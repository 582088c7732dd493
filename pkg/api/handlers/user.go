package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/pkg/api/middleware"
)

// UserHandler manages admin-created user accounts and their login tokens
// (spec.md §4.6's "user_token" issuer family).
type UserHandler struct{ deps *Deps }

func NewUserHandler(deps *Deps) *UserHandler { return &UserHandler{deps: deps} }

type createUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Admin    bool   `json:"admin"`
}

// Create answers POST /_/user.
func (h *UserHandler) Create(c *gin.Context) {
	p := middleware.Principal(c)
	if err := p.RequireAdmin(); err != nil {
		fail(c, http.StatusForbidden, err.Error())
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable body")
		return
	}
	var req createUserRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := authn.HashPassword(req.Password)
	if err != nil {
		internalErr(c, err)
		return
	}

	userUUID := uuid.NewString()
	_, err = h.deps.ConfigDB.ExecContext(c.Request.Context(),
		"INSERT INTO _config_user (uuid, email, password_hash, admin) VALUES (?, ?, ?, ?)",
		userUUID, req.Email, hash, req.Admin)
	if err != nil {
		fail(c, http.StatusConflict, "email already registered")
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "user-create", req.Email)
	c.JSON(http.StatusCreated, gin.H{"uuid": userUUID, "email": req.Email, "admin": req.Admin})
}

type userTokenRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Write    bool   `json:"write"`
	// NeverExpires mints a sentinel token whose expiration_date equals its
	// updated_at, treated as never-expiring by internal/authn.
	NeverExpires bool  `json:"neverExpires"`
	TTLSeconds   int64 `json:"ttlSeconds"`
}

type userRow struct {
	UUID         string `db:"uuid"`
	PasswordHash string `db:"password_hash"`
	Active       bool   `db:"active"`
}

// issueToken verifies email/password and mints a user_token bearer JWT,
// storing its claims alongside the issuing row so internal/authn.Authenticate
// can re-validate it per request.
func (h *UserHandler) issueToken(c *gin.Context) (string, bool) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable body")
		return "", false
	}
	var req userTokenRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return "", false
	}

	var row userRow
	err = h.deps.ConfigDB.GetContext(c.Request.Context(), &row,
		"SELECT uuid, password_hash, active FROM _config_user WHERE email = ?", req.Email)
	if err != nil || !row.Active {
		fail(c, http.StatusUnauthorized, "The email or password is not correct.")
		return "", false
	}
	ok, err := authn.VerifyPassword(req.Password, row.PasswordHash)
	if err != nil || !ok {
		fail(c, http.StatusUnauthorized, "The email or password is not correct.")
		return "", false
	}

	now := time.Now().Unix()
	exp := now
	if !req.NeverExpires {
		ttl := req.TTLSeconds
		if ttl <= 0 {
			ttl = int64(24 * time.Hour / time.Second)
		}
		exp = now + ttl
	}

	token, err := authn.MintToken(h.deps.Secret, authn.IssuerUserToken, exp, now)
	if err != nil {
		internalErr(c, err)
		return "", false
	}

	_, err = h.deps.ConfigDB.ExecContext(c.Request.Context(), `
INSERT INTO _config_user_token (user_uuid, token, expiration_date, write, updated_at)
VALUES (?, ?, ?, ?, ?)
`, row.UUID, token, exp, req.Write, now)
	if err != nil {
		internalErr(c, err)
		return "", false
	}

	return token, true
}

// IssueToken answers POST /_/user/token.
func (h *UserHandler) IssueToken(c *gin.Context) {
	token, ok := h.issueToken(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": []gin.H{{"token": token}}})
}

// Value answers POST /_/user/token/value, the login convenience endpoint
// spec.md §8 scenario A exercises directly: `data[0].token` carries the
// minted bearer JWT.
func (h *UserHandler) Value(c *gin.Context) {
	token, ok := h.issueToken(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": []gin.H{{"token": token}}})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/pkg/api/middleware"
)

// TokenHandler manages standalone API tokens (spec.md §4.6's "token"
// issuer family — not tied to a user account, used by service-to-service
// callers).
type TokenHandler struct{ deps *Deps }

func NewTokenHandler(deps *Deps) *TokenHandler { return &TokenHandler{deps: deps} }

type createTokenRequest struct {
	Name         string `json:"name" binding:"required"`
	Write        bool   `json:"write"`
	NeverExpires bool   `json:"neverExpires"`
	TTLSeconds   int64  `json:"ttlSeconds"`
}

// Create answers POST /_/token.
func (h *TokenHandler) Create(c *gin.Context) {
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
	var req createTokenRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().Unix()
	exp := now
	if !req.NeverExpires {
		ttl := req.TTLSeconds
		if ttl <= 0 {
			ttl = int64(30 * 24 * time.Hour / time.Second)
		}
		exp = now + ttl
	}

	token, err := authn.MintToken(h.deps.Secret, authn.IssuerToken, exp, now)
	if err != nil {
		internalErr(c, err)
		return
	}

	_, err = h.deps.ConfigDB.ExecContext(c.Request.Context(), `
INSERT INTO _config_token (name, token, expiration_date, write, updated_at) VALUES (?, ?, ?, ?, ?)
`, req.Name, token, exp, req.Write, now)
	if err != nil {
		fail(c, http.StatusConflict, "token name already exists")
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "token-create", req.Name)
	c.JSON(http.StatusCreated, gin.H{"name": req.Name, "token": token})
}

type tokenListRow struct {
	Name           string `db:"name" json:"name"`
	Write          bool   `db:"write" json:"write"`
	Active         bool   `db:"active" json:"active"`
	ExpirationDate int64  `db:"expiration_date" json:"expirationDate"`
}

// List answers GET /_/token.
func (h *TokenHandler) List(c *gin.Context) {
	p := middleware.Principal(c)
	if err := p.RequireAdmin(); err != nil {
		fail(c, http.StatusForbidden, err.Error())
		return
	}

	var rows []tokenListRow
	if err := h.deps.ConfigDB.SelectContext(c.Request.Context(), &rows,
		"SELECT name, write, active, expiration_date FROM _config_token ORDER BY name"); err != nil {
		internalErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Delete answers DELETE /_/token?name=....
func (h *TokenHandler) Delete(c *gin.Context) {
	p := middleware.Principal(c)
	if err := p.RequireAdmin(); err != nil {
		fail(c, http.StatusForbidden, err.Error())
		return
	}

	name := c.Query("name")
	if name == "" {
		fail(c, http.StatusBadRequest, "name is required")
		return
	}

	if _, err := h.deps.ConfigDB.ExecContext(c.Request.Context(),
		"UPDATE _config_token SET active = 0 WHERE name = ?", name); err != nil {
		internalErr(c, err)
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "token-delete", name)
	c.Status(http.StatusNoContent)
}

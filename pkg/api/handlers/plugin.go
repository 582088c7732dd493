package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/middleware"
)

// PluginHandler ingests WASM plugin modules (spec.md §4.3's plugin()
// host call draws from the same plugin table this populates).
type PluginHandler struct{ deps *Deps }

func NewPluginHandler(deps *Deps) *PluginHandler { return &PluginHandler{deps: deps} }

type pluginBuilderRequest struct {
	Name string `json:"name" binding:"required"`
	Data string `json:"data" binding:"required"` // base64-encoded .wasm bytes
}

// Build answers POST /_/plugin-builder: stores the module keyed by name,
// recomputing its SHA-256 so internal/plugin can verify integrity on load.
func (h *PluginHandler) Build(c *gin.Context) {
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
	var req pluginBuilderRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	data, err := decodeBase64(req.Data)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid base64 data")
		return
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	_, err = h.deps.PluginDB.ExecContext(c.Request.Context(), `
INSERT INTO plugin (name, data, sha256) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET data = excluded.data, sha256 = excluded.sha256
`, req.Name, data, checksum)
	if err != nil {
		internalErr(c, err)
		return
	}
	if err := storage.BumpInvalidation(c.Request.Context(), h.deps.InvalDB); err != nil {
		internalErr(c, err)
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "plugin-builder", req.Name)
	c.JSON(http.StatusCreated, gin.H{"name": req.Name, "sha256": checksum})
}

type pluginDeleteRequest struct {
	Name string `json:"name" binding:"required"`
}

// Delete answers DELETE /_/plugin-builder.
func (h *PluginHandler) Delete(c *gin.Context) {
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
	var req pluginDeleteRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.deps.PluginDB.ExecContext(c.Request.Context(),
		"DELETE FROM plugin WHERE name = ?", req.Name); err != nil {
		internalErr(c, err)
		return
	}
	if err := storage.BumpInvalidation(c.Request.Context(), h.deps.InvalDB); err != nil {
		internalErr(c, err)
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "plugin-delete", req.Name)
	c.Status(http.StatusNoContent)
}

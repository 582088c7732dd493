package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/middleware"
)

// FunctionHandler manages stored request-handling functions (spec.md §4.2).
type FunctionHandler struct{ deps *Deps }

func NewFunctionHandler(deps *Deps) *FunctionHandler { return &FunctionHandler{deps: deps} }

type functionBuilderRequest struct {
	Method   string `json:"method" binding:"required"`
	Path     string `json:"path" binding:"required"`
	Function string `json:"function" binding:"required"`
}

// Build answers POST /_/function-builder: registers or replaces the
// function served for (method, path).
func (h *FunctionHandler) Build(c *gin.Context) {
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
	var req functionBuilderRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	source, err := decodeBase64(req.Function)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid base64 function")
		return
	}

	_, err = h.deps.FunctionDB.ExecContext(c.Request.Context(), `
INSERT INTO function (method, path, function) VALUES (?, ?, ?)
ON CONFLICT(method, path) DO UPDATE SET function = excluded.function
`, req.Method, req.Path, source)
	if err != nil {
		internalErr(c, err)
		return
	}
	if err := storage.BumpInvalidation(c.Request.Context(), h.deps.InvalDB); err != nil {
		internalErr(c, err)
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "function-builder", req.Method+" "+req.Path)
	c.JSON(http.StatusCreated, gin.H{"method": req.Method, "path": req.Path})
}

type functionListRow struct {
	Method string `db:"method" json:"method"`
	Path   string `db:"path" json:"path"`
	Active bool   `db:"active" json:"active"`
}

// List answers GET /_/function.
func (h *FunctionHandler) List(c *gin.Context) {
	var rows []functionListRow
	if err := h.deps.FunctionDB.SelectContext(c.Request.Context(), &rows,
		"SELECT method, path, active FROM function ORDER BY path"); err != nil {
		internalErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Delete answers DELETE /_/function, deactivating rather than removing so
// the path keeps its history.
func (h *FunctionHandler) Delete(c *gin.Context) {
	p := middleware.Principal(c)
	if err := p.RequireAdmin(); err != nil {
		fail(c, http.StatusForbidden, err.Error())
		return
	}

	method := c.Query("method")
	funcPath := c.Query("path")
	if method == "" || funcPath == "" {
		fail(c, http.StatusBadRequest, "method and path are required")
		return
	}

	if _, err := h.deps.FunctionDB.ExecContext(c.Request.Context(),
		"UPDATE function SET active = 0 WHERE method = ? AND path = ?", method, funcPath); err != nil {
		internalErr(c, err)
		return
	}
	if err := storage.BumpInvalidation(c.Request.Context(), h.deps.InvalDB); err != nil {
		internalErr(c, err)
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "function-delete", method+" "+funcPath)
	c.Status(http.StatusNoContent)
}

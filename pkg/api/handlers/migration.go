package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/middleware"
)

// MigrationHandler runs an atomic BEGIN IMMEDIATE / COMMIT migration
// against a named user database (spec.md §4.7).
type MigrationHandler struct{ deps *Deps }

func NewMigrationHandler(deps *Deps) *MigrationHandler { return &MigrationHandler{deps: deps} }

// migrationRequest mirrors spec.md §4.7's wire shape: {db_name, query}.
type migrationRequest struct {
	DBName string `json:"db_name" binding:"required"`
	Query  string `json:"query" binding:"required"`
}

// Run answers POST /_/migration.
func (h *MigrationHandler) Run(c *gin.Context) {
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
	var req migrationRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	db, err := storage.OpenUser(c.Request.Context(), h.deps.DBsPath, req.DBName, h.deps.Secret)
	if err != nil {
		fail(c, http.StatusNotFound, "database not found")
		return
	}
	defer db.Close()

	if err := storage.RunMigration(c.Request.Context(), db, req.Query); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := storage.BumpInvalidation(c.Request.Context(), h.deps.InvalDB); err != nil {
		internalErr(c, err)
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "migration", req.DBName)
	c.Status(http.StatusNoContent)
}

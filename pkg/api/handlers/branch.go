package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/middleware"
)

// BranchHandler manages VACUUM INTO snapshots of user databases (spec.md
// §4.7).
type BranchHandler struct{ deps *Deps }

func NewBranchHandler(deps *Deps) *BranchHandler { return &BranchHandler{deps: deps} }

type branchRequest struct {
	Database string `json:"database" binding:"required"`
	Branch   string `json:"branch" binding:"required"`
}

// Create answers POST /_/branch.
func (h *BranchHandler) Create(c *gin.Context) {
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
	var req branchRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	branch, err := storage.CreateBranch(c.Request.Context(), h.deps.DBsPath, req.Database, req.Branch, h.deps.Secret)
	if err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "branch-create", req.Database+"/"+req.Branch)
	c.JSON(http.StatusCreated, branch)
}

// List answers GET /_/branch?database=....
func (h *BranchHandler) List(c *gin.Context) {
	database := c.Query("database")

	all, err := storage.ListBranches(h.deps.DBsPath)
	if err != nil {
		internalErr(c, err)
		return
	}

	if database == "" {
		c.JSON(http.StatusOK, all)
		return
	}
	filtered := make([]storage.Branch, 0, len(all))
	for _, b := range all {
		if b.DBName == database {
			filtered = append(filtered, b)
		}
	}
	c.JSON(http.StatusOK, filtered)
}

// Delete answers DELETE /_/branch?database=...&branch=....
func (h *BranchHandler) Delete(c *gin.Context) {
	p := middleware.Principal(c)
	if err := p.RequireAdmin(); err != nil {
		fail(c, http.StatusForbidden, err.Error())
		return
	}

	database := c.Query("database")
	branch := c.Query("branch")
	if database == "" || branch == "" {
		fail(c, http.StatusBadRequest, "database and branch are required")
		return
	}

	fileName := storage.BranchFileName(database, branch)
	if err := storage.DeleteBranch(h.deps.DBsPath, fileName); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "branch-delete", database+"/"+branch)
	c.Status(http.StatusNoContent)
}

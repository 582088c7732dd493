package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/middleware"
)

// QueryHandler implements the SPEC_FULL.md addition of a direct /_/query
// admin endpoint for ad-hoc SQL against a named user database, reusing the
// same bind/scan logic the scripting host call exercises.
type QueryHandler struct{ deps *Deps }

func NewQueryHandler(deps *Deps) *QueryHandler { return &QueryHandler{deps: deps} }

// queryRequest mirrors spec.md §8 scenario C's wire shape exactly:
// {"db_name":"u.sql","query":"SELECT :x AS x","params":{":x":42}}.
type queryRequest struct {
	DBName string          `json:"db_name" binding:"required"`
	Query  string          `json:"query" binding:"required"`
	Params json.RawMessage `json:"params"`
}

// Run executes a query or statement against req.DBName, requiring write
// access for anything that isn't a SELECT.
func (h *QueryHandler) Run(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable body")
		return
	}
	var req queryRequest
	if err := bindSanitized(body, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Params) == 0 {
		req.Params = json.RawMessage("[]")
	}

	db, err := storage.OpenUser(c.Request.Context(), h.deps.DBsPath, req.DBName, h.deps.Secret)
	if err != nil {
		fail(c, http.StatusNotFound, "database not found")
		return
	}
	defer db.Close()

	p := middleware.Principal(c)
	isSelect := isSelectSQL(req.Query)
	if !isSelect {
		if err := p.RequireWrite(); err != nil {
			fail(c, http.StatusForbidden, err.Error())
			return
		}
	}

	result, err := storage.Execute(c.Request.Context(), db, req.Query, req.Params)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !isSelect {
		if err := storage.BumpInvalidation(c.Request.Context(), h.deps.InvalDB); err != nil {
			internalErr(c, err)
			return
		}
	}

	auditLog(c, h.deps.ConfigDB, p.UserUUID, "query", req.DBName)
	c.JSON(http.StatusOK, result)
}

func isSelectSQL(sqlText string) bool {
	for _, r := range sqlText {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return r == 'S' || r == 's'
		}
	}
	return false
}

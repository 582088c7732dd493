// Package handlers implements the admin endpoint set spec.md §4.1 reserves
// under the "_" path prefix: asset, asset-builder, branch, function,
// function-builder, healthcheck, migration, plugin-builder, query, token,
// user, user/token. Grounded on the teacher's pkg/api/handlers (struct-per-
// resource handlers holding their dependencies, gin.H{"error": ...}
// responses) and original_source/crates/server/src/controllers/* for
// endpoint semantics.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/plugin"
	"github.com/queryrun/server/internal/scripting"
	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/apperror"
)

// Deps bundles every dependency the admin handlers share. One instance is
// built in cmd/server and handed to each resource's constructor.
type Deps struct {
	ConfigDB   *storage.DB
	AssetDB    *storage.DB
	FunctionDB *storage.DB
	PluginDB   *storage.DB
	CacheDB    *storage.DB
	InvalDB    *storage.DB

	DBsPath string
	Secret  []byte

	L1         *cache.L1
	PluginGate *plugin.Gate
	Engine     *scripting.Engine
}

func fail(c *gin.Context, status int, msg string) {
	apperror.Render(c, &apperror.Error{Status: status, Message: msg})
}

func internalErr(c *gin.Context, err error) {
	apperror.Render(c, apperror.Wrap(http.StatusInternalServerError, err.Error(), err))
}

// controlChars matches spec.md §9's decision to keep stripping raw control
// characters from admin JSON bodies before decoding, a quirk inherited from
// the original implementation that some existing callers depend on.
var controlChars = regexp.MustCompile(`[\x00-\x1f]`)

func sanitizeJSON(body []byte) []byte {
	return controlChars.ReplaceAll(body, nil)
}

// bindSanitized strips control characters per spec.md §9's compatibility
// decision before decoding an admin request body into v.
func bindSanitized(body []byte, v any) error {
	return json.Unmarshal(sanitizeJSON(body), v)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func auditLog(c *gin.Context, configDB *storage.DB, actorUUID, action, resource string) {
	_, _ = configDB.ExecContext(c.Request.Context(),
		"INSERT INTO _config_audit_log (actor_uuid, action, resource) VALUES (?, ?, ?)",
		actorUUID, action, resource)
}

package apperror_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/pkg/apperror"
)

func TestConstructorsCarryStatus(t *testing.T) {
	require.Equal(t, http.StatusNotFound, apperror.NotFound("missing").Status)
	require.Equal(t, http.StatusBadRequest, apperror.BadRequest("bad").Status)
	require.Equal(t, http.StatusUnauthorized, apperror.Unauthorized("no").Status)
}

func TestAsDefaultsUntypedErrorsTo500(t *testing.T) {
	err := apperror.As(errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestAsPassesThroughTypedError(t *testing.T) {
	original := apperror.NotFound("gone")
	require.Same(t, original, apperror.As(original))
}

func TestRenderWritesStatusAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	apperror.Render(c, apperror.NotFound("not here"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not here")
}

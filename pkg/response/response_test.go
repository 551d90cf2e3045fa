package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
)

func newContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	return ctx, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestSuccess(t *testing.T) {
	ctx, rec := newContext(t)
	Success(ctx, http.StatusCreated, gin.H{"message": "ok"})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.Nil(t, resp.Error)
	require.Nil(t, resp.Meta)
}

func TestPaginatedComputesTotalPages(t *testing.T) {
	cases := []struct {
		perPage int
		total   int64
		pages   int
	}{
		{perPage: 10, total: 20, pages: 2},
		{perPage: 10, total: 21, pages: 3},
		{perPage: 10, total: 0, pages: 0},
	}
	for _, tc := range cases {
		ctx, rec := newContext(t)
		Paginated(ctx, []string{}, 1, tc.perPage, tc.total)

		require.Equal(t, http.StatusOK, rec.Code)
		meta := decode(t, rec).Meta
		require.NotNil(t, meta)
		require.Equal(t, int(tc.total), meta.Total)
		require.Equal(t, tc.pages, meta.TotalPages)
	}
}

func TestErrorUsesTaxonomyStatus(t *testing.T) {
	ctx, rec := newContext(t)
	Error(ctx, appErrors.ErrForbidden.WithInternal(errors.New("user 42 is not admin")))

	require.Equal(t, http.StatusForbidden, rec.Code)
	resp := decode(t, rec)
	require.False(t, resp.Success)
	require.Equal(t, appErrors.ErrForbidden.Code, resp.Error.Code)
	require.NotContains(t, rec.Body.String(), "user 42")
}

func TestErrorHidesGenericErrors(t *testing.T) {
	ctx, rec := newContext(t)
	Error(ctx, errors.New("pq: relation users does not exist"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, appErrors.ErrInternalServer.Code, decode(t, rec).Error.Code)
	require.NotContains(t, rec.Body.String(), "relation")

	ctx, rec = newContext(t)
	Error(ctx, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	ctx, rec := newContext(t)
	RateLimited(ctx, 2400*time.Millisecond)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))
	require.True(t, ctx.IsAborted())
	require.Equal(t, appErrors.ErrRateLimit.Code, decode(t, rec).Error.Code)

	ctx, rec = newContext(t)
	RateLimited(ctx, 10*time.Millisecond)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

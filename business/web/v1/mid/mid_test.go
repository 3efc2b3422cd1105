package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ardanlabs/powchain/business/sys/validate"
	v1 "github.com/ardanlabs/powchain/business/web/v1"
	"github.com/ardanlabs/powchain/business/web/v1/mid"
	"github.com/ardanlabs/powchain/foundation/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serve(t *testing.T, h web.Handler) (*httptest.ResponseRecorder, v1.ErrorResponse) {
	t.Helper()

	log := zaptest.NewLogger(t).Sugar()
	app := web.NewApp(nil, mid.Logger(log), mid.Errors(log), mid.Metrics(), mid.Cors("*"), mid.Panics())
	app.Handle(http.MethodGet, "v1", "/test", h)

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/test", nil))

	var er v1.ErrorResponse
	if w.Code != http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
	}

	return w, er
}

func TestErrors(t *testing.T) {
	t.Run("request error", func(t *testing.T) {
		w, er := serve(t, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return v1.NewRequestError(errors.New("block not found"), http.StatusNotFound)
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "block not found", er.Error)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("field errors", func(t *testing.T) {
		w, er := serve(t, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return validate.FieldErrors{{Field: "payload", Error: "payload is a required field"}}
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "data validation error", er.Error)
		assert.Equal(t, map[string]string{"payload": "payload is a required field"}, er.Fields)
	})

	t.Run("unexpected error", func(t *testing.T) {
		w, er := serve(t, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return errors.New("disk on fire")
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, http.StatusText(http.StatusInternalServerError), er.Error)
	})

	t.Run("panic", func(t *testing.T) {
		w, _ := serve(t, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			panic("boom")
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		w, _ := serve(t, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return web.Respond(ctx, w, map[string]bool{"ok": true}, http.StatusOK)
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	})
}

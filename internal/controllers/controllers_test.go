package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"testing/iotest"

	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func invokeEngine(t *testing.T) *gin.Engine {
	t.Helper()
	d := services.NewDispatcher(zap.NewNop())
	d.Register("echo", func(_ context.Context, inv services.Invocation) (interface{}, error) {
		return len(inv.Args), nil
	})
	d.Register("closed", func(context.Context, services.Invocation) (interface{}, error) {
		return nil, services.ErrMonitorShutdown
	})

	r := gin.New()
	r.POST("/invoke/:command", InvokeCommand(d))
	return r
}

func invoke(r http.Handler, command string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/invoke/"+command, body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload.Error
}

func TestInvokeCommandBodyErrors(t *testing.T) {
	r := invokeEngine(t)

	w := invoke(r, "echo", strings.NewReader(`{"x": 1}`))
	assert.Check(t, is.Equal(w.Code, http.StatusOK))
	assert.Check(t, is.Equal(w.Body.String(), "8"))

	w = invoke(r, "echo", bytes.NewReader(make([]byte, maxArgsBytes+1)))
	assert.Check(t, is.Equal(w.Code, http.StatusRequestEntityTooLarge))
	assert.Check(t, is.Equal(errorBody(t, w), "request body too large"))

	w = invoke(r, "echo", iotest.ErrReader(errors.New("connection reset by peer")))
	assert.Check(t, is.Equal(w.Code, http.StatusBadRequest))
	assert.Check(t, is.Equal(errorBody(t, w), "could not read request body"))
}

func TestInvokeCommandErrorStatus(t *testing.T) {
	r := invokeEngine(t)

	w := invoke(r, "missing", http.NoBody)
	assert.Check(t, is.Equal(w.Code, http.StatusNotFound))

	w = invoke(r, "closed", http.NoBody)
	assert.Check(t, is.Equal(w.Code, http.StatusServiceUnavailable))
	assert.Check(t, is.Equal(errorBody(t, w), services.ErrMonitorShutdown.Error()))
}

func TestCheckOrigin(t *testing.T) {
	request := func(origin string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	defaults := checkOrigin(nil, false)
	assert.Check(t, defaults(request("")))
	assert.Check(t, defaults(request("http://localhost:1420")))
	assert.Check(t, !defaults(request("https://evil.example")))

	withAuth := checkOrigin(nil, true)
	assert.Check(t, withAuth(request("https://evil.example")))

	listed := checkOrigin([]string{"tauri://localhost"}, false)
	assert.Check(t, listed(request("tauri://localhost")))
	assert.Check(t, !listed(request("http://localhost:1420")))
}

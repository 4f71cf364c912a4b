package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/config"
	"github.com/mastercactapus/lasergrbl/ledger"
)

func newTestAPI(t *testing.T) (*api, *controller) {
	t.Helper()
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.Server.DataDir = t.TempDir()

	a := &app{v: viper.New(), cfg: cfg, log: zap.NewNop()}
	c := a.newController()
	srv := newAPI(a, c)
	t.Cleanup(func() {
		srv.Close()
		c.Close()
	})
	return srv, c
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestSafePath(t *testing.T) {
	ok, name := safePath("/data", "../../etc/passwd")
	assert.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/data/etc/passwd"), name)

	ok, name = safePath("", "a/b.gcode")
	assert.True(t, ok)
	assert.Equal(t, filepath.FromSlash("a/b.gcode"), name)
}

func TestAPI_FilesAndPreview(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := do(srv, http.MethodPut, "/data/square.gcode", "G90\nM3 S500\nG1 X10 F600\nG1 Y10\nM5\n")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/data/square.gcode", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "G1 X10 F600")

	rec = do(srv, http.MethodGet, "/api/preview/square.gcode", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res previewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "square.gcode", res.Name)
	require.Len(t, res.Segments, 1)
	assert.True(t, res.Segments[0].LaserOn)
	assert.Equal(t, [2]float64{10, 10}, res.Max)
	assert.InDelta(t, 20.0/600, res.Minutes, 1e-12)

	rec = do(srv, http.MethodGet, "/api/preview/missing.gcode", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(srv, http.MethodDelete, "/data/square.gcode", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(srv, http.MethodGet, "/data/square.gcode", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Binary(t *testing.T) {
	srv, _ := newTestAPI(t)

	require.Equal(t, http.StatusOK, do(srv, http.MethodPut, "/data/bin.gcode", "\x00\x01\x02\x03").Code)
	rec := do(srv, http.MethodGet, "/api/preview/bin.gcode", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_NotConnected(t *testing.T) {
	srv, _ := newTestAPI(t)

	assert.Equal(t, http.StatusServiceUnavailable, do(srv, http.MethodPost, "/api/send", "G0 X0\n").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(srv, http.MethodPost, "/api/realtime/hold", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(srv, http.MethodPost, "/api/run/x.gcode", "").Code)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodPost, "/api/realtime/explode", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodPost, "/api/override/feed/+5", "").Code)

	rec := do(srv, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Connected)
}

func TestAPI_Lines(t *testing.T) {
	srv, c := newTestAPI(t)
	c.ledger.StoreComment("(hello)")
	c.ledger.StoreSend("G0X0")

	var lines []ledger.Entry
	rec := do(srv, http.MethodGet, "/api/lines", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	assert.Equal(t, []ledger.Entry{{Seq: 0, State: ledger.Comment, Text: "(hello)"}}, lines)

	rec = do(srv, http.MethodGet, "/api/lines?verbose=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	assert.Len(t, lines, 2)
}

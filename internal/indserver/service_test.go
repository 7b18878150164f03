package indserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indlink/config"
	"indlink/internal/link"
	"indlink/internal/model"
)

func newTestService(t *testing.T, env map[string]string) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("JOURNAL_PATH", filepath.Join(dir, "exports.db"))
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	svc, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(svc.closeStores)

	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)
	return svc, "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.LinkPath
}

func dial(t *testing.T, url string) *link.ClientLink {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := link.Dial(ctx, url, model.Hello{RemoteType: "MT4", IndicatorName: "test"})
	require.NoError(t, err)
	return c
}

func TestService_CollectsAndJournals(t *testing.T) {
	svc, url := newTestService(t, nil)
	assert.Equal(t, "collecting", svc.mode())

	c := dial(t, url)
	assert.False(t, c.Blocking())
	assert.Equal(t, []string{"CLOSE[1]", "SMA(10)[3]", "SMA(25)[3]"}, c.Fields())

	require.NoError(t, c.SendBar(1000, "EURUSD", []string{"1.25", "1.0", "1.1", "1.2", "0.9", "1.0", "1.1"}))
	require.NoError(t, c.Goodbye())

	require.Eventually(t, func() bool {
		recs, err := svc.journal.RecentExports(10)
		return err == nil && len(recs) == 1
	}, 3*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(filepath.Join(svc.cfg.ExportDir, "collected0.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "1000,1.25,"))

	rec := httptest.NewRecorder()
	svc.admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string               `json:"status"`
		Data   []model.ExportRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "eurusd", body.Data[0].Instrument)
	assert.Equal(t, 1, body.Data[0].Rows)
}

func TestService_PredictsWithLinearModel(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "linear.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte("name: const\nweights:\n  - [0, 0, 0]\nbias: [0.5]\n"), 0o644))

	svc, url := newTestService(t, map[string]string{"MODEL_PATH": modelPath})
	assert.Equal(t, "predicting", svc.mode())

	c := dial(t, url)
	defer c.Close()
	assert.True(t, c.Blocking())

	require.NoError(t, c.SendBar(1000, "EURUSD", []string{"1.25", "1.0", "1.1", "1.2", "0.9", "1.0", "1.1"}))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	p, err := c.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, model.PacketInd, p.Command)
	assert.Equal(t, "17.5", p.Arg(3))
}

func TestService_BadModelPath(t *testing.T) {
	t.Setenv("EXPORT_DIR", t.TempDir())
	t.Setenv("MODEL_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	_, err = New(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "load model")
}

func startRun(t *testing.T, svc *Service) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- svc.Run(ctx) }()

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		cancelFn()
		t.Fatal("link listener not ready")
	}
	return cancelFn, ch
}

func waitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestService_RunStopsOnCancel(t *testing.T) {
	t.Setenv("LINK_ADDR", "127.0.0.1:0")
	t.Setenv("ADMIN_ADDR", "127.0.0.1:0")
	svc, _ := newTestService(t, nil)

	cancel, done := startRun(t, svc)
	cancel()
	waitRun(t, done)
}

func TestService_ShutdownExportsOpenCollectSession(t *testing.T) {
	t.Setenv("LINK_ADDR", "127.0.0.1:0")
	t.Setenv("ADMIN_ADDR", "127.0.0.1:0")
	svc, _ := newTestService(t, nil)

	cancel, done := startRun(t, svc)
	defer cancel()

	c := dial(t, "ws://"+svc.LinkAddr().String()+svc.cfg.LinkPath)
	defer c.Close()
	require.NoError(t, c.SendBar(1000, "EURUSD", []string{"1.25", "1.0", "1.1", "1.2", "0.9", "1.0", "1.1"}))
	require.Eventually(t, func() bool {
		list := svc.link.Registry().List()
		return len(list) == 1 && list[0].Packets == 1
	}, 3*time.Second, 10*time.Millisecond)

	// The peer never says GOODBYE: shutdown alone must end the session.
	cancel()
	waitRun(t, done)

	data, err := os.ReadFile(filepath.Join(svc.cfg.ExportDir, "collected0.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1000,1.25,1.0,1.1,1.2,0.9,1.0,1.1", lines[1])
	assert.Equal(t, 0, svc.link.Registry().Len())
}

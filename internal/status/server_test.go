package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stderrors "errors"

	"github.com/gin-gonic/gin"
	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTasks []supervisor.Info

func (f fakeTasks) List() []supervisor.Info { return f }

func (f fakeTasks) Info(id string) (supervisor.Info, bool) {
	for _, info := range f {
		if info.ID == id {
			return info, true
		}
	}
	return supervisor.Info{}, false
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	tasks := fakeTasks{
		{ID: "connect-device-2", Name: "device_connect", State: supervisor.Failed, LastError: "Could not connect: timeout"},
		{ID: "monitor-device-1", Name: "device_monitor", State: supervisor.Running, Restarts: 1},
	}
	verified := true
	d := device.New("10.0.0.1", "admin")
	d.ID = "1"
	d.Password = "secret"
	d.Connected = &verified
	return Router(NewHandler(tasks, device.NewMemoryStore(d)))
}

func get(t *testing.T, router http.Handler, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestHealth(t *testing.T) {
	var body struct {
		Status string         `json:"status"`
		Tasks  map[string]int `json:"tasks"`
	}
	code := get(t, newRouter(t), "/healthz", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]int{"failed": 1, "running": 1}, body.Tasks)
}

func TestListTasks(t *testing.T) {
	var body map[string]TaskView
	code := get(t, newRouter(t), "/tasks", &body)

	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body, 2)
	assert.Equal(t, supervisor.Running, body["monitor-device-1"].State)
	assert.Equal(t, 1, body["monitor-device-1"].Restarts)
	assert.Equal(t, "Could not connect: timeout", body["connect-device-2"].LastError)
}

func TestGetTask(t *testing.T) {
	router := newRouter(t)

	var task TaskView
	assert.Equal(t, http.StatusOK, get(t, router, "/tasks/monitor-device-1", &task))
	assert.Equal(t, "device_monitor", task.Name)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/tasks/monitor-device-9", nil))
}

func TestListDevices(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")

	var devices []DeviceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "1 (admin@10.0.0.1:22)", devices[0].Endpoint)
	require.NotNil(t, devices[0].Connected)
	assert.True(t, *devices[0].Connected)
}

func TestDevicesRouteNeedsStore(t *testing.T) {
	router := Router(NewHandler(fakeTasks{}, nil))
	assert.Equal(t, http.StatusNotFound, get(t, router, "/devices", nil))
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), NewHandler(fakeTasks{}, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/healthz", ln.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ln.Addr().String(), NewHandler(fakeTasks{}, nil), nil)
	err = srv.Run(context.Background())
	require.Error(t, err)

	var opErr *net.OpError
	assert.True(t, stderrors.As(err, &opErr))
}

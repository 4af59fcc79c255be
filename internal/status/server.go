// Package status serves a small read-only HTTP view of the supervisor and
// the device store.
package status

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/internal/supervisor"
)

// Tasks is the part of the supervisor the server reads.
type Tasks interface {
	List() []supervisor.Info
	Info(id string) (supervisor.Info, bool)
}

// Handler holds the endpoint implementations.
type Handler struct {
	tasks   Tasks
	devices device.Store
	started time.Time
}

// NewHandler creates a handler. devices may be nil, in which case /devices
// is not registered.
func NewHandler(tasks Tasks, devices device.Store) *Handler {
	return &Handler{tasks: tasks, devices: devices, started: time.Now()}
}

// TaskView is one task as reported by /tasks.
type TaskView struct {
	Name      string           `json:"name"`
	State     supervisor.State `json:"state"`
	LastError string           `json:"last_error,omitempty"`
	Restarts  int              `json:"restarts"`
}

// DeviceView is one device as reported by /devices.
type DeviceView struct {
	ID        string        `json:"id"`
	Endpoint  string        `json:"endpoint"`
	Status    device.Status `json:"status"`
	Connected *bool         `json:"connected"`
	Interval  int           `json:"stat_interval"`
}

// Router builds the gin engine.
func Router(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.Health)
	router.GET("/tasks", h.ListTasks)
	router.GET("/tasks/:id", h.GetTask)
	if h.devices != nil {
		router.GET("/devices", h.ListDevices)
	}
	return router
}

// Health reports liveness and the number of tasks by state.
func (h *Handler) Health(c *gin.Context) {
	counts := make(map[supervisor.State]int)
	for _, info := range h.tasks.List() {
		counts[info.State]++
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"tasks":  counts,
	})
}

// ListTasks maps every task id to its state and last error.
func (h *Handler) ListTasks(c *gin.Context) {
	out := make(map[string]TaskView)
	for _, info := range h.tasks.List() {
		out[info.ID] = view(info)
	}
	c.JSON(http.StatusOK, out)
}

// GetTask reports one task.
func (h *Handler) GetTask(c *gin.Context) {
	info, ok := h.tasks.Info(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such task"})
		return
	}
	c.JSON(http.StatusOK, view(info))
}

// ListDevices reports every stored device without credentials.
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errors.Reason(err)})
		return
	}
	out := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceView{
			ID:        d.ID,
			Endpoint:  d.String(),
			Status:    d.Status,
			Connected: d.Connected,
			Interval:  d.StatInterval,
		})
	}
	c.JSON(http.StatusOK, out)
}

func view(info supervisor.Info) TaskView {
	return TaskView{Name: info.Name, State: info.State, LastError: info.LastError, Restarts: info.Restarts}
}

// Server runs the router on a listen address.
type Server struct {
	srv *http.Server
	log logger.Logger
}

// NewServer creates a server for addr. It does not listen until Run.
func NewServer(addr string, h *Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.Noop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           Router(h),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger.WithPrefix(log, "[status]"),
	}
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't listen on "+s.srv.Addr,
			"Pick a free address for status.listen or leave it empty to disable the endpoint")
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("Serving status on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

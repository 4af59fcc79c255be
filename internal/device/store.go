package device

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/oxyio/netmon/internal/errors"
)

// ErrNotFound is wrapped by stores when a device id is unknown.
var ErrNotFound = stderrors.New("device not found")

// Store loads and saves device configuration.
type Store interface {
	Load(ctx context.Context, id string) (*Device, error)
	Save(ctx context.Context, d *Device) error
	List(ctx context.Context) ([]*Device, error)
}

// IsNotFound reports whether err means the device doesn't exist.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

func notFound(id string) error {
	return errors.WrapWithCode(ErrNotFound, errors.ErrStore,
		fmt.Sprintf("Device '%s' not found", id),
		"List devices with: netmon device list")
}

// MemoryStore keeps devices in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewMemoryStore creates a store holding copies of the given devices.
func NewMemoryStore(devices ...*Device) *MemoryStore {
	s := &MemoryStore{devices: make(map[string]*Device)}
	for _, d := range devices {
		s.devices[d.ID] = d.Clone()
	}
	return s
}

// Load returns a copy of the device.
func (s *MemoryStore) Load(_ context.Context, id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, notFound(id)
	}
	return d.Clone(), nil
}

// Save validates and stores a copy of the device.
func (s *MemoryStore) Save(_ context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d.Clone()
	return nil
}

// List returns copies of all devices sorted by id.
func (s *MemoryStore) List(_ context.Context) ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.Clone())
	}
	sortDevices(out)
	return out, nil
}

func sortDevices(devices []*Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
}

package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oxyio/netmon/internal/errors"
	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout of a device file.
type fileDocument struct {
	Devices []*Device `yaml:"devices"`
}

// FileStore keeps devices in a YAML file. The file is re-read on every
// call so edits made by hand are picked up.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. A missing file means no devices.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() ([]*Device, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't read %s", s.path),
			"Check the file exists and is readable.")
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't parse %s", s.path),
			"Check the YAML syntax.")
	}
	return doc.Devices, nil
}

// write replaces the file atomically.
func (s *FileStore) write(devices []*Device) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(fileDocument{Devices: devices}); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Couldn't encode devices", "")
	}
	encoder.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't create %s", dir), "Check directory permissions.")
	}

	tmp, err := os.CreateTemp(dir, ".devices-*.yaml")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't write to %s", dir), "Check directory permissions.")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.WrapWithCode(err, errors.ErrStore, "Couldn't write device file", "")
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.WrapWithCode(err, errors.ErrStore, "Couldn't write device file", "")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Couldn't write device file", "")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't replace %s", s.path), "Check file permissions.")
	}
	return nil
}

// Load returns the device with the given id.
func (s *FileStore) Load(_ context.Context, id string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, notFound(id)
}

// Save validates the device and inserts or replaces it.
func (s *FileStore) Save(_ context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.read()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range devices {
		if existing.ID == d.ID {
			devices[i] = d.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		devices = append(devices, d.Clone())
	}
	sortDevices(devices)

	return s.write(devices)
}

// List returns all devices sorted by id.
func (s *FileStore) List(_ context.Context) ([]*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.read()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*Device{}
	}
	sortDevices(devices)
	return devices, nil
}

package testing

import (
	"context"
	"sync"

	"github.com/oxyio/netmon/pkg/sshutil"
)

// WithFiles pre-populates the mock filesystem with files.
// Keys are paths, values are file contents. A leading ~ expands to the mock home.
func WithFiles(client *MockClient, files map[string]string) {
	for path, content := range files {
		_ = client.GetFS().WriteFile(client.expand(path), []byte(content))
	}
}

// WithDirs pre-populates the mock filesystem with directories.
func WithDirs(client *MockClient, dirs []string) {
	for _, dir := range dirs {
		_ = client.GetFS().MkdirAll(client.expand(dir))
	}
}

// Dialer hands out mock clients and records how each dial authenticated.
type Dialer struct {
	mu        sync.Mutex
	clients   []*MockClient
	next      int
	err       error
	passwords []string
	endpoints []sshutil.Endpoint
}

// NewDialer returns a dialer that hands out the given clients in order and
// then keeps returning the last one. A closed client is reopened, so repeat
// dials see the same filesystem.
func NewDialer(clients ...*MockClient) *Dialer {
	return &Dialer{clients: clients}
}

// FailingDialer returns a dialer whose every dial fails with err.
func FailingDialer(err error) *Dialer {
	return &Dialer{err: err}
}

// Dial implements sshutil.DialFunc.
func (d *Dialer) Dial(_ context.Context, ep sshutil.Endpoint, password string) (sshutil.SSHClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.passwords = append(d.passwords, password)
	d.endpoints = append(d.endpoints, ep)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.clients) == 0 {
		return NewMockClient(ep.Host), nil
	}
	client := d.clients[d.next]
	if d.next < len(d.clients)-1 {
		d.next++
	}
	client.reopen()
	return client, nil
}

// Func returns d.Dial as a DialFunc.
func (d *Dialer) Func() sshutil.DialFunc {
	return d.Dial
}

// Passwords returns the password passed to each dial.
func (d *Dialer) Passwords() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.passwords...)
}

// Endpoints returns the endpoint passed to each dial.
func (d *Dialer) Endpoints() []sshutil.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sshutil.Endpoint(nil), d.endpoints...)
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.passwords)
}

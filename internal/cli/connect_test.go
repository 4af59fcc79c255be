package cli

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/oxyio/netmon/internal/bootstrap"
	"github.com/oxyio/netmon/internal/errors"
	sshtest "github.com/oxyio/netmon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectDevice(t *testing.T) {
	client := statClient()
	dialer := sshtest.NewDialer(client)
	a, _ := testApp(t, dialer, testDevice("sw1", nil))
	ctx := context.Background()

	var out bytes.Buffer
	res, err := connectDevice(ctx, a, &out, "sw1", "pw")
	require.NoError(t, err)
	assert.Equal(t, bootstrap.Verified, res.State)
	assert.Contains(t, out.String(), "✓ Verified")
	assert.Equal(t, []string{"pw"}, dialer.Passwords())

	d, err := a.store.Load(ctx, "sw1")
	require.NoError(t, err)
	assert.True(t, d.Verified())

	keys, err := client.GetFS().ReadFile(client.Home() + "/.ssh/authorized_keys")
	require.NoError(t, err)
	pub, err := bootstrap.ReadPublicKey(a.cfg.SSH.KeyPublic)
	require.NoError(t, err)
	assert.Contains(t, string(keys), pub)
}

func TestConnectDevice_Failure(t *testing.T) {
	dialer := sshtest.FailingDialer(stderrors.New("dial tcp: connection refused"))
	a, _ := testApp(t, dialer, testDevice("sw1", nil))
	ctx := context.Background()

	var out bytes.Buffer
	res, err := connectDevice(ctx, a, &out, "sw1", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	assert.Equal(t, bootstrap.Failed, res.State)
	assert.Contains(t, out.String(), "✗ Could not connect")
	assert.Contains(t, out.String(), "connection refused")

	d, err := a.store.Load(ctx, "sw1")
	require.NoError(t, err)
	require.NotNil(t, d.Connected)
	assert.False(t, *d.Connected)
}

func TestConnectDevice_Unknown(t *testing.T) {
	a, _ := testApp(t, sshtest.NewDialer())

	_, err := connectDevice(context.Background(), a, &bytes.Buffer{}, "ghost", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

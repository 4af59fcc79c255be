package sshutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// testServer is a minimal in-process sshd answering exec requests.
//
//	ok        -> prints "hello", exit 0
//	fail      -> prints to stderr, exit 3
//	nostatus  -> closes without an exit status
//	drop      -> closes the whole connection
type testServer struct {
	Addr     string
	Password string
	HostKey  ssh.PublicKey

	listener net.Listener
	mu       sync.Mutex
	commands []string
}

func startTestServer(t *testing.T, password string) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("bad password for %s", c.User())
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &testServer{
		Addr:     ln.Addr().String(),
		Password: password,
		HostKey:  signer.PublicKey(),
		listener: ln,
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn, config)
		}
	}()
	return srv
}

func (s *testServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testServer) endpoint() Endpoint {
	host, port, _ := net.SplitHostPort(s.Addr)
	p, _ := strconv.Atoi(port)
	return Endpoint{Host: host, Port: p, User: "tester"}
}

func (s *testServer) serve(conn net.Conn, config *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only sessions")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(sconn, ch, requests)
	}
}

func (s *testServer) handleSession(sconn *ssh.ServerConn, ch ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()

		switch {
		case strings.Contains(payload.Command, "nostatus"):
			ch.Close()
		case strings.Contains(payload.Command, "drop"):
			sconn.Close()
		case strings.Contains(payload.Command, "fail"):
			_, _ = ch.Stderr().Write([]byte("it broke\n"))
			sendExitStatus(ch, 3)
			ch.Close()
		default:
			_, _ = ch.Write([]byte("hello\nworld\n"))
			sendExitStatus(ch, 0)
			ch.Close()
		}
		return
	}
}

func sendExitStatus(ch ssh.Channel, status uint32) {
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
}

package testing

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/oxyio/netmon/pkg/sshutil"
)

// DefaultHome is what ~ expands to on the mock device.
const DefaultHome = "/home/netmon"

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error

	// Block holds the command until the channel is closed or the client is.
	Block <-chan struct{}
}

// ExecCall records one Exec invocation.
type ExecCall struct {
	Raw     string // The command as sent over the wire
	Command string // The command with the shell wrapper removed
	Sudo    bool
}

// MockClient simulates an SSH connection for testing.
// It unwraps the bash -c wrapper and runs common shell commands against a
// virtual filesystem.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	home     string
	fs       *MockFS
	closed   bool
	done     chan struct{}
	commands map[string]CommandResponse // pattern -> response
	calls    []ExecCall

	transferErr error
	transfers   int
}

// NewMockClient creates a new mock SSH client with an empty filesystem.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		home:     DefaultHome,
		fs:       NewMockFS(),
		done:     make(chan struct{}),
		commands: make(map[string]CommandResponse),
	}
}

// Exec runs a command against the virtual filesystem, or returns the
// canned response registered for it.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	inner, sudo := UnwrapCommand(cmd)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, -1, errors.New("connection closed")
	}
	m.calls = append(m.calls, ExecCall{Raw: cmd, Command: inner, Sudo: sudo})
	resp, ok := m.lookup(cmd, inner)
	done := m.done
	m.mu.Unlock()

	if ok {
		if resp.Block != nil {
			select {
			case <-resp.Block:
			case <-done:
				return nil, nil, -1, errors.New("connection closed")
			}
		}
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	out, errOut, code := m.run(inner)
	return out, errOut, code, nil
}

// lookup finds a canned response. Exact matches win over patterns.
func (m *MockClient) lookup(raw, inner string) (CommandResponse, bool) {
	if resp, ok := m.commands[inner]; ok {
		return resp, true
	}
	if resp, ok := m.commands[raw]; ok {
		return resp, true
	}
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, inner); matched {
			return resp, true
		}
	}
	return CommandResponse{}, false
}

// NewFileTransfer returns a transfer that writes into the mock filesystem.
func (m *MockClient) NewFileTransfer() (sshutil.FileTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("connection closed")
	}
	m.transfers++
	return &mockTransfer{client: m}, nil
}

// Close marks the connection as closed and releases blocked commands.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// reopen makes a closed client usable again, like a fresh connection to
// the same device.
func (m *MockClient) reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.closed = false
		m.done = make(chan struct{})
	}
}

// Closed reports whether Close was called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex matched against the
// unwrapped command.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// SetTransferError makes file writes through NewFileTransfer fail.
func (m *MockClient) SetTransferError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferErr = err
}

// Transfers returns how many file-transfer channels were opened.
func (m *MockClient) Transfers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfers
}

// Calls returns every Exec invocation so far.
func (m *MockClient) Calls() []ExecCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecCall(nil), m.calls...)
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// Home returns the directory ~ expands to.
func (m *MockClient) Home() string {
	return m.home
}

type mockTransfer struct {
	client *MockClient
}

func (t *mockTransfer) WriteFile(path string, data []byte) error {
	t.client.mu.Lock()
	err := t.client.transferErr
	t.client.mu.Unlock()
	if err != nil {
		return err
	}
	return t.client.fs.WriteFile(t.client.expand(path), data)
}

func (t *mockTransfer) Close() error { return nil }

// UnwrapCommand strips the bash -c and sudo -S wrappers added by
// sshutil.WrapCommand.
func UnwrapCommand(cmd string) (inner string, sudo bool) {
	if rest, ok := strings.CutPrefix(cmd, "sudo -S "); ok {
		sudo = true
		cmd = rest
	}
	rest, ok := strings.CutPrefix(cmd, "bash -c ")
	if !ok {
		return cmd, sudo
	}
	words := tokenize(rest)
	if len(words) != 1 {
		return rest, sudo
	}
	return words[0].text, sudo
}

// run evaluates a command line joined with ;, && and ||.
func (m *MockClient) run(line string) ([]byte, []byte, int) {
	var stdout, stderr []byte
	code := 0
	op := ";"
	for _, part := range splitOperators(line) {
		if isOperator(part) {
			op = part
			continue
		}
		if (op == "&&" && code != 0) || (op == "||" && code == 0) {
			continue
		}
		out, errOut, c := m.runSimple(part)
		stdout = append(stdout, out...)
		stderr = append(stderr, errOut...)
		code = c
	}
	return stdout, stderr, code
}

// runSimple runs one command with optional > or >> redirect.
func (m *MockClient) runSimple(cmd string) ([]byte, []byte, int) {
	words := tokenize(cmd)
	if len(words) == 0 {
		return nil, nil, 0
	}

	redirect, target := "", ""
	for i, w := range words {
		if !w.quoted && (w.text == ">>" || w.text == ">") && i+1 < len(words) {
			redirect, target = w.text, m.expand(words[i+1].text)
			words = words[:i]
			break
		}
	}

	args := make([]string, len(words))
	for i, w := range words {
		args[i] = w.text
	}

	out, errOut, code := m.dispatch(args)
	if redirect == "" || code != 0 {
		return out, errOut, code
	}

	var err error
	if redirect == ">>" {
		err = m.fs.AppendFile(target, out)
	} else {
		err = m.fs.WriteFile(target, out)
	}
	if err != nil {
		return nil, []byte(fmt.Sprintf("bash: %s: %v\n", target, err)), 1
	}
	return nil, errOut, 0
}

func (m *MockClient) dispatch(args []string) ([]byte, []byte, int) {
	switch args[0] {
	case "mkdir":
		return m.handleMkdir(args[1:])
	case "touch":
		return m.handleTouch(args[1:])
	case "grep":
		return m.handleGrep(args[1:])
	case "echo":
		return []byte(strings.Join(args[1:], " ") + "\n"), nil, 0
	case "chmod":
		return m.handleChmod(args[1:])
	case "cat":
		return m.handleCat(args[1:])
	case "rm":
		return m.handleRm(args[1:])
	case "test":
		return m.handleTest(args[1:])
	case "sleep", "true":
		return nil, nil, 0
	case "false":
		return nil, nil, 1
	}
	// Unknown command - return success by default
	return nil, nil, 0
}

// handleMkdir processes: mkdir [-p] path...
func (m *MockClient) handleMkdir(args []string) ([]byte, []byte, int) {
	parents := false
	if len(args) > 0 && args[0] == "-p" {
		parents = true
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, []byte("mkdir: missing operand\n"), 1
	}
	for _, arg := range args {
		path := m.expand(arg)
		var err error
		if parents {
			err = m.fs.MkdirAll(path)
		} else {
			err = m.fs.Mkdir(path)
		}
		if err != nil {
			return nil, []byte(fmt.Sprintf("mkdir: cannot create directory '%s': %v\n", arg, err)), 1
		}
	}
	return nil, nil, 0
}

// handleTouch processes: touch path...
func (m *MockClient) handleTouch(args []string) ([]byte, []byte, int) {
	if len(args) == 0 {
		return nil, []byte("touch: missing file operand\n"), 1
	}
	for _, arg := range args {
		if err := m.fs.Touch(m.expand(arg)); err != nil {
			return nil, []byte(fmt.Sprintf("touch: cannot touch '%s': %v\n", arg, err)), 1
		}
	}
	return nil, nil, 0
}

// handleGrep processes: grep -qxF pattern file, with exit codes like grep.
func (m *MockClient) handleGrep(args []string) ([]byte, []byte, int) {
	quiet, whole, fixed := false, false, false
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		flags := args[0][1:]
		quiet = quiet || strings.Contains(flags, "q")
		whole = whole || strings.Contains(flags, "x")
		fixed = fixed || strings.Contains(flags, "F")
		args = args[1:]
	}
	if len(args) < 2 {
		return nil, []byte("grep: missing operand\n"), 2
	}
	pattern, path := args[0], args[1]

	content, err := m.fs.ReadFile(m.expand(path))
	if err != nil {
		return nil, []byte(fmt.Sprintf("grep: %s: No such file or directory\n", path)), 2
	}

	var re *regexp.Regexp
	if !fixed {
		re, err = regexp.Compile(pattern)
		if err != nil {
			return nil, []byte("grep: invalid pattern\n"), 2
		}
	}

	var matched []string
	for _, line := range strings.Split(string(content), "\n") {
		ok := false
		switch {
		case fixed && whole:
			ok = line == pattern
		case fixed:
			ok = strings.Contains(line, pattern)
		case whole:
			ok = re.FindString(line) == line && line != ""
		default:
			ok = re.MatchString(line)
		}
		if ok {
			matched = append(matched, line)
		}
	}

	if len(matched) == 0 {
		return nil, nil, 1
	}
	if quiet {
		return nil, nil, 0
	}
	return []byte(strings.Join(matched, "\n") + "\n"), nil, 0
}

// handleChmod processes: chmod <octal> path...
func (m *MockClient) handleChmod(args []string) ([]byte, []byte, int) {
	if len(args) < 2 {
		return nil, []byte("chmod: missing operand\n"), 1
	}
	mode, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil {
		return nil, []byte(fmt.Sprintf("chmod: invalid mode: '%s'\n", args[0])), 1
	}
	for _, arg := range args[1:] {
		if err := m.fs.Chmod(m.expand(arg), os.FileMode(mode)); err != nil {
			return nil, []byte(fmt.Sprintf("chmod: cannot access '%s': %v\n", arg, err)), 1
		}
	}
	return nil, nil, 0
}

// handleCat processes: cat path...
func (m *MockClient) handleCat(args []string) ([]byte, []byte, int) {
	if len(args) == 0 {
		return nil, []byte("cat: missing file operand\n"), 1
	}
	var out []byte
	for _, arg := range args {
		content, err := m.fs.ReadFile(m.expand(arg))
		if err != nil {
			return out, []byte("cat: " + arg + ": No such file or directory\n"), 1
		}
		out = append(out, content...)
	}
	return out, nil, 0
}

// handleRm processes: rm [-rf] path...
func (m *MockClient) handleRm(args []string) ([]byte, []byte, int) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		_ = m.fs.Remove(m.expand(arg))
	}
	return nil, nil, 0
}

// handleTest processes: test -d path / test -f path
func (m *MockClient) handleTest(args []string) ([]byte, []byte, int) {
	if len(args) != 2 {
		return nil, nil, 2
	}
	path := m.expand(args[1])
	ok := false
	switch args[0] {
	case "-d":
		ok = m.fs.IsDir(path)
	case "-f":
		ok = m.fs.IsFile(path)
	case "-e":
		ok = m.fs.Exists(path)
	}
	if ok {
		return nil, nil, 0
	}
	return nil, nil, 1
}

func (m *MockClient) expand(path string) string {
	if path == "~" {
		return m.home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return m.home + "/" + rest
	}
	return path
}

type word struct {
	text   string
	quoted bool
}

// tokenize splits a command into words, honouring single and double quotes
// and backslash escapes outside single quotes.
func tokenize(s string) []word {
	var words []word
	var cur strings.Builder
	inWord, quoted := false, false
	var quote byte

	flush := func() {
		if inWord {
			words = append(words, word{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		inWord, quoted = false, false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case quote == '"':
			if c == '"' {
				quote = 0
			} else if c == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
				i++
				cur.WriteByte(s[i])
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inWord, quoted = true, true
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
			inWord = true
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	flush()
	return words
}

// splitOperators splits a line at ;, && and || outside quotes. Operators
// are returned as their own elements.
func splitOperators(s string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			parts = append(parts, strings.TrimSpace(s[start:i]), ";")
			start = i + 1
		case (c == '&' || c == '|') && i+1 < len(s) && s[i+1] == c:
			parts = append(parts, strings.TrimSpace(s[start:i]), string([]byte{c, c}))
			i++
			start = i + 1
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

func isOperator(s string) bool {
	return s == ";" || s == "&&" || s == "||"
}

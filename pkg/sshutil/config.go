package sshutil

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/oxyio/netmon/internal/logger"
)

// HostAlias is what an OpenSSH config file says about one device host.
type HostAlias struct {
	Alias        string
	HostName     string
	User         string
	Port         int
	IdentityFile string
}

// String renders the alias the way `device list` shows a resolved host.
func (h HostAlias) String() string {
	var b strings.Builder
	b.WriteString(h.Alias)
	if h.HostName != "" && h.HostName != h.Alias {
		b.WriteString(" -> " + h.HostName)
	}
	if h.Port > 0 && h.Port != 22 {
		b.WriteString(":" + strconv.Itoa(h.Port))
	}
	if h.User != "" {
		b.WriteString(" as " + h.User)
	}
	return b.String()
}

// LookupHost resolves alias against the OpenSSH config at path. found is
// false when the file is missing or sets nothing for the alias.
func LookupHost(path, alias string) (HostAlias, bool, error) {
	h := HostAlias{Alias: alias}

	content, matchLine, err := readUntilMatch(path)
	if os.IsNotExist(err) {
		return h, false, nil
	}
	if err != nil {
		return h, false, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return h, false, err
	}

	get := func(key string) string {
		v, _ := cfg.Get(alias, key)
		return v
	}
	h.HostName = get("HostName")
	h.User = get("User")
	if p := get("Port"); p != "" {
		h.Port, _ = strconv.Atoi(p)
	}
	if id := get("IdentityFile"); id != "" {
		h.IdentityFile = expandPath(id)
	}

	found := h.HostName != "" || h.User != "" || h.Port > 0 || h.IdentityFile != ""
	if !found && matchLine > 0 {
		logger.Default().Debug("[ssh] %s: no settings for %s before the Match block on line %d",
			path, alias, matchLine)
	}
	return h, found, nil
}

// readUntilMatch returns the config up to its first Match block and the
// 1-based line of that block, or 0. The decoder can't parse Match.
func readUntilMatch(path string) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var kept []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], "match") {
			return []byte(strings.Join(kept, "\n")), n, nil
		}
		kept = append(kept, line)
	}
	return []byte(strings.Join(kept, "\n")), 0, sc.Err()
}

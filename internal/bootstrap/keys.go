package bootstrap

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oxyio/netmon/internal/config"
	"github.com/oxyio/netmon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ReadPublicKey reads an authorized_keys style public key file and returns
// its single line.
func ReadPublicKey(pubPath string) (string, error) {
	pubPath = config.ExpandTilde(pubPath)
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile,
			fmt.Sprintf("Couldn't read public key: %s", pubPath),
			"Check ssh.key_public in netmon.yaml, or create a key with: netmon keygen")
	}

	line := strings.TrimSpace(string(data))
	if strings.ContainsAny(line, "\r\n") {
		return "", errors.New(errors.ErrFile,
			fmt.Sprintf("%s holds more than one key", pubPath),
			"Keep a single key in the file.")
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line)); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile,
			fmt.Sprintf("%s is not a valid public key", pubPath),
			"The file should contain one line like: ssh-ed25519 AAAA... comment")
	}
	return line, nil
}

// GenerateKey writes a new ed25519 key pair to privPath and privPath.pub.
// It refuses to overwrite an existing key. Returns the public key line.
func GenerateKey(privPath, comment string) (string, error) {
	privPath = config.ExpandTilde(privPath)
	if comment == "" {
		comment = "netmon"
	}

	if _, err := os.Stat(privPath); err == nil {
		return "", errors.New(errors.ErrFile,
			fmt.Sprintf("Key already exists at %s", privPath),
			"Choose a different path or delete the existing key")
	}

	dir := filepath.Dir(privPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile,
			fmt.Sprintf("Failed to create key directory: %s", dir),
			"Check permissions on the parent directory")
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile, "Failed to generate key", "")
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile, "Failed to encode private key", "")
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile, "Failed to encode public key", "")
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " " + comment

	if err := os.WriteFile(privPath, pem.EncodeToMemory(block), 0600); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile,
			fmt.Sprintf("Failed to write %s", privPath), "Check disk space and permissions")
	}
	if err := os.WriteFile(privPath+".pub", []byte(line+"\n"), 0644); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile,
			fmt.Sprintf("Failed to write %s.pub", privPath), "Check disk space and permissions")
	}
	return line, nil
}

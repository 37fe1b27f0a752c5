package sshkey

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
)

// Key is a validated OpenSSH public key.
type Key struct {
	// Authorized is the single-line authorized_keys form handed to the
	// cloud APIs.
	Authorized string
	// Fingerprint is the SHA256 fingerprint, for logging.
	Fingerprint string
}

// Load reads and validates the public key at path. The provisioned VM
// only accepts key auth, so a bad key here means a VM nobody can reach.
func Load(fs afero.Fs, path string) (*Key, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("SSH public key not found at %s: %w", path, err)
	}

	parsed, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("invalid SSH public key at %s: %w", path, err)
	}

	return &Key{
		Authorized:  strings.TrimSpace(string(data)),
		Fingerprint: ssh.FingerprintSHA256(parsed),
	}, nil
}

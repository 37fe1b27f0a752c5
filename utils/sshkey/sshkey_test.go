package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return ssh.MarshalAuthorizedKey(sshPub)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	raw := generateKey(t)
	require.NoError(t, afero.WriteFile(fs, "/home/test/.ssh/id_ed25519.pub", raw, 0o600))

	key, err := Load(fs, "/home/test/.ssh/id_ed25519.pub")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(string(raw)), key.Authorized)
	assert.True(t, strings.HasPrefix(key.Fingerprint, "SHA256:"))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope.pub")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSH public key not found at /nope.pub")
}

func TestLoad_Invalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.pub", []byte("definitely not a key"), 0o600))

	_, err := Load(fs, "/bad.pub")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SSH public key")
}

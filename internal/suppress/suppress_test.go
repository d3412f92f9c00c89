package suppress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadClients(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "client_suppression.csv",
		"Client Name,Owner\nAcme Co.,jt\nBeta Industries LLC,mv\n")

	l := NewList()
	require.NoError(t, l.LoadClients(path))

	// Normalized matching: punctuation and case do not matter.
	assert.True(t, l.BlockedClient("ACME CO"))
	assert.True(t, l.BlockedClient("acme co."))
	assert.True(t, l.BlockedClient("Beta Industries, LLC"))
	assert.False(t, l.BlockedClient("Gamma Corp"))
}

func TestLoadClients_MissingColumn(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "bad.csv", "Company,Owner\nAcme,jt\n")
	err := NewList().LoadClients(path)
	assert.Error(t, err)
}

func TestLoadDNC(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "dnc_list.csv",
		"Email,Domain\nNeil.Parton@ajg.com,\n,competitor.com\n")

	l := NewList()
	require.NoError(t, l.LoadDNC(path))

	assert.True(t, l.BlockedEmail("neil.parton@ajg.com"))
	assert.True(t, l.BlockedEmail("NEIL.PARTON@AJG.COM"))
	assert.True(t, l.BlockedEmail("anyone@competitor.com"))
	assert.False(t, l.BlockedEmail("someone@elsewhere.com"))
	assert.False(t, l.BlockedEmail(""))
}

func TestAddDomain_StripsAtPrefix(t *testing.T) {
	t.Parallel()
	l := NewList()
	l.AddDomain("@blocked.com")
	assert.True(t, l.BlockedEmail("x@blocked.com"))
}

func TestSize(t *testing.T) {
	t.Parallel()
	l := NewList()
	l.AddClient("Acme Co")
	l.AddEmail("a@b.com")
	l.AddDomain("c.com")
	assert.Equal(t, 3, l.Size())
}

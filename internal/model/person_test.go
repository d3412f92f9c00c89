package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeLinkedIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://www.linkedin.com/in/neil-parton", "https://www.linkedin.com/in/neil-parton"},
		{"query stripped", "https://www.linkedin.com/in/neil-parton?utm_source=share", "https://www.linkedin.com/in/neil-parton"},
		{"trailing slash", "https://www.linkedin.com/in/neil-parton/", "https://www.linkedin.com/in/neil-parton"},
		{"uppercase", "https://www.LinkedIn.com/in/Neil-Parton", "https://www.linkedin.com/in/neil-parton"},
		{"fragment stripped", "https://linkedin.com/in/jane#about", "https://linkedin.com/in/jane"},
		{"empty", "", ""},
		{"whitespace", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanonicalizeLinkedIn(tt.in))
		})
	}
}

func TestResolveIdentity_Precedence(t *testing.T) {
	t.Parallel()

	// Email wins over everything.
	key, typ := ResolveIdentity("Neil.Parton@AJG.com", "https://linkedin.com/in/neil-parton", "Neil", "Parton", "GALLAGHER")
	assert.Equal(t, IdentityEmail, typ)
	assert.Equal(t, "neil.parton@ajg.com", key)

	// LinkedIn next.
	key, typ = ResolveIdentity("", "https://linkedin.com/in/neil-parton?trk=x", "Neil", "Parton", "GALLAGHER")
	assert.Equal(t, IdentityLinkedIn, typ)
	assert.Equal(t, "https://linkedin.com/in/neil-parton", key)

	// Hash fallback.
	key, typ = ResolveIdentity("", "", "Neil", "Parton", "Gallagher")
	assert.Equal(t, IdentityHash, typ)
	assert.Equal(t, "cefa262422509e0e741960d7ef98f5f04f836b31c209390495125834cc30de7f", key)
}

func TestResolveIdentity_Total(t *testing.T) {
	t.Parallel()

	// Even with every field empty the hash branch produces a key.
	key, typ := ResolveIdentity("", "", "", "", "")
	assert.Equal(t, IdentityHash, typ)
	assert.NotEmpty(t, key)
	assert.Len(t, key, 64)
}

func TestResolveIdentity_HashNormalization(t *testing.T) {
	t.Parallel()

	// Case and punctuation do not change the hash identity.
	k1, _ := ResolveIdentity("", "", "Neil", "Parton", "Gallagher")
	k2, _ := ResolveIdentity("", "", " NEIL ", "par-ton", "G.A.L.L.A.G.H.E.R")
	k3, _ := ResolveIdentity("", "", "neil", "parton", "GALLAGHER")
	assert.Equal(t, k1, k2)
	assert.Equal(t, k1, k3)
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		first string
		last  string
	}{
		{"Neil Parton", "Neil", "Parton"},
		{"Mary Jo van der Berg", "Mary", "Jo van der Berg"},
		{"Prince", "Prince", ""},
		{"", "", ""},
		{"  Jane   Doe  ", "Jane", "Doe"},
	}

	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

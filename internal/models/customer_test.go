package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCustomer(t *testing.T) {
	c := NewCustomer("  alice ", "hash", 100000)

	assert.Equal(t, "alice", c.Login)
	assert.Equal(t, "hash", c.PasswordHash)
	assert.Equal(t, int64(100000), c.Balance)
	assert.Empty(t, c.SessionToken)
}

func TestCustomer_HasSession(t *testing.T) {
	c := NewCustomer("alice", "hash", 0)

	// No session yet: nothing authenticates, not even the empty token
	assert.False(t, c.HasSession(""))
	assert.False(t, c.HasSession("abc"))

	c.SessionToken = "abc"
	assert.True(t, c.HasSession("abc"))
	assert.False(t, c.HasSession("abd"))
	assert.False(t, c.HasSession(""))
}

func TestAdmin_HasSession(t *testing.T) {
	a := NewAdmin("root", "hash")
	assert.False(t, a.HasSession("tok"))

	a.SessionToken = "tok"
	assert.True(t, a.HasSession("tok"))
	assert.False(t, a.HasSession("tok2"))
}

func TestCustomer_CanAfford(t *testing.T) {
	c := NewCustomer("alice", "hash", 500)

	assert.True(t, c.CanAfford(0))
	assert.True(t, c.CanAfford(500))
	assert.False(t, c.CanAfford(501))
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		password string
		wantErr  string
	}{
		{name: "valid", login: "alice", password: "secret"},
		{name: "empty login", login: " ", password: "secret", wantErr: "login is required"},
		{name: "long login", login: strings.Repeat("a", 65), password: "secret", wantErr: "at most 64"},
		{name: "empty password", login: "alice", wantErr: "password is required"},
		{name: "long password", login: "alice", password: strings.Repeat("p", 73), wantErr: "at most 72 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentials(tt.login, tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

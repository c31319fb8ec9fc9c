package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArg(t *testing.T) {
	args := map[string]interface{}{
		"user_email": "  alice@example.com ",
		"days":       7.0,
	}

	assert.Equal(t, "alice@example.com", StringArg(args, "user_email"))
	assert.Equal(t, "", StringArg(args, "days"))
	assert.Equal(t, "", StringArg(args, "missing"))
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		expected int
	}{
		{name: "float from json", args: map[string]interface{}{"days": 14.0}, expected: 14},
		{name: "int", args: map[string]interface{}{"days": 3}, expected: 3},
		{name: "missing uses default", args: map[string]interface{}{}, expected: 7},
		{name: "wrong type uses default", args: map[string]interface{}{"days": "ten"}, expected: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IntArg(tt.args, "days", 7))
		})
	}
}

func TestCredentialsFromArgs(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		creds, err := CredentialsFromArgs(map[string]interface{}{}, "credentials")
		require.NoError(t, err)
		assert.Nil(t, creds)
	})

	t.Run("object", func(t *testing.T) {
		args := map[string]interface{}{
			"credentials": map[string]interface{}{
				"token":         "access",
				"refresh_token": "refresh",
				"client_id":     "id",
				"client_secret": "secret",
			},
		}
		creds, err := CredentialsFromArgs(args, "credentials")
		require.NoError(t, err)
		require.NotNil(t, creds)
		assert.Equal(t, "access", creds.Token)
		assert.Equal(t, "refresh", creds.RefreshToken)
		assert.Equal(t, "id", creds.ClientID)
	})

	t.Run("json string", func(t *testing.T) {
		args := map[string]interface{}{"credentials": `{"token":"access"}`}
		creds, err := CredentialsFromArgs(args, "credentials")
		require.NoError(t, err)
		require.NotNil(t, creds)
		assert.Equal(t, "access", creds.Token)
	})

	t.Run("invalid string", func(t *testing.T) {
		args := map[string]interface{}{"credentials": "not json"}
		_, err := CredentialsFromArgs(args, "credentials")
		assert.Error(t, err)
	})
}

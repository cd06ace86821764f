package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-narrator/internal/auth"
)

func TestRunMintsVerifiableToken(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"--user", "user-a", "--storyteller", "--secret", "dev-secret", "--ttl", "1h"}, &out)
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator("dev-secret")
	require.NoError(t, err)
	id, err := authn.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "user-a", Storyteller: true}, id)
}

func TestRunSecretFromEnvironment(t *testing.T) {
	t.Setenv("SCENYX_AUTH_SECRET", "env-secret")

	var out bytes.Buffer
	require.NoError(t, run([]string{"-u", "user-b"}, &out))

	authn, err := auth.NewAuthenticator("env-secret")
	require.NoError(t, err)
	id, err := authn.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "user-b"}, id)
}

func TestRunRejectsBadArguments(t *testing.T) {
	t.Setenv("SCENYX_AUTH_SECRET", "env-secret")

	tcs := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing user", args: nil, want: "--user is required"},
		{name: "negative ttl", args: []string{"-u", "a", "--ttl", "-1h"}, want: "--ttl must be positive"},
		{name: "stray argument", args: []string{"-u", "a", "extra"}, want: "unexpected argument: extra"},
		{name: "unknown flag", args: []string{"--colour"}, want: "colour"},
		{name: "blank secret", args: []string{"-u", "a", "--secret", " "}, want: "secret"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--help"}, &out))
	assert.Contains(t, out.String(), "--storyteller")
}

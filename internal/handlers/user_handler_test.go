package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetAllUsers(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.login(t, "alice")
	env.login(t, "bob")
	env.registry.Register(aliceID, &stubConn{id: "tab-1"})

	w := env.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Users []UserResponse `json:"users"`
		Count int            `json:"count"`
	}
	decodeBody(t, w, &resp)
	require.Equal(t, 2, resp.Count)
	require.Equal(t, "alice", resp.Users[0].Username)
	require.True(t, resp.Users[0].Online)
	require.Equal(t, "bob", resp.Users[1].Username)
	require.False(t, resp.Users[1].Online)
}

func TestGetAllUsers_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

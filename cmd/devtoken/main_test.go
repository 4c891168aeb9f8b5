package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/config"
)

func TestIssue(t *testing.T) {
	cfg := &config.Config{AuthSecret: "s3cret", AuthIssuer: "status-hub"}

	token, err := issue(cfg, "user-9", "org-1", time.Hour)
	require.NoError(t, err)

	claims, err := auth.NewIdentity("s3cret", "status-hub").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, "org-1", claims.OrgID)
}

func TestIssue_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		user string
		ttl  time.Duration
	}{
		{"production", config.Config{AuthSecret: "s", Env: "production"}, "u", time.Hour},
		{"no user", config.Config{AuthSecret: "s"}, "", time.Hour},
		{"non-positive ttl", config.Config{AuthSecret: "s"}, "u", 0},
		{"no secret", config.Config{}, "u", time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issue(&tt.cfg, tt.user, "", tt.ttl)
			assert.Error(t, err)
		})
	}
}

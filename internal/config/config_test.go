package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("test-signing-key"))

	tt := []struct {
		name          string
		serverAddr    string
		databaseDSN   string
		base64Secret  string
		snapshotLimit int
		wantErr       string
		wantLimit     int
	}{
		{
			name:          "valid configuration",
			serverAddr:    "localhost:8080",
			databaseDSN:   "postgres://localhost/chatrelay",
			base64Secret:  secret,
			snapshotLimit: 100,
			wantLimit:     100,
		},
		{
			name:         "zero snapshot limit falls back to default",
			serverAddr:   "localhost:8080",
			databaseDSN:  "postgres://localhost/chatrelay",
			base64Secret: secret,
			wantLimit:    DefaultSnapshotLimit,
		},
		{
			name:          "oversized snapshot limit is clamped",
			serverAddr:    "localhost:8080",
			databaseDSN:   "postgres://localhost/chatrelay",
			base64Secret:  secret,
			snapshotLimit: 10000,
			wantLimit:     maxSnapshotLimit,
		},
		{
			name:         "empty server address",
			databaseDSN:  "postgres://localhost/chatrelay",
			base64Secret: secret,
			wantErr:      "server address cannot be empty",
		},
		{
			name:         "empty database DSN",
			serverAddr:   "localhost:8080",
			base64Secret: secret,
			wantErr:      "database DSN cannot be empty",
		},
		{
			name:        "empty signing secret",
			serverAddr:  "localhost:8080",
			databaseDSN: "postgres://localhost/chatrelay",
			wantErr:     "signing secret cannot be empty",
		},
		{
			name:         "signing secret is not base64",
			serverAddr:   "localhost:8080",
			databaseDSN:  "postgres://localhost/chatrelay",
			base64Secret: "not base64!!!",
			wantErr:      "decode signing secret",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.serverAddr, tc.databaseDSN, tc.base64Secret, []string{"http://localhost:3000"}, tc.snapshotLimit)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				assert.Nil(t, cfg)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.serverAddr, cfg.ServerAddr)
			assert.Equal(t, tc.databaseDSN, cfg.DatabaseDSN)
			assert.Equal(t, []byte("test-signing-key"), cfg.SigningKey)
			assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
			assert.Equal(t, tc.wantLimit, cfg.SnapshotLimit)
		})
	}
}

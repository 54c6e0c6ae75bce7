package migrate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		dir     string
		target  string
		wantErr bool
	}{
		{
			name:   "postgresql",
			url:    "postgresql://u:p@host:5432/db",
			dir:    "postgres",
			target: "pgx5://u:p@host:5432/db",
		},
		{
			name:   "postgres",
			url:    "postgres://u:p@host/db",
			dir:    "postgres",
			target: "pgx5://u:p@host/db",
		},
		{
			name:   "sqlite",
			url:    "sqlite:///tmp/x.db",
			dir:    "sqlite",
			target: "sqlite:///tmp/x.db",
		},
		{name: "mysql", url: "mysql://x", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, target, err := resolve(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dir, dir)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestMigrateSqlite(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, MigrateDb(url))
	// second run has nothing to do
	require.NoError(t, MigrateDb(url))
}

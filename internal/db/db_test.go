package db

import (
	"strings"
	"testing"

	"github.com/zulandar/carpool/internal/config"
	"github.com/zulandar/carpool/internal/models"
	"gorm.io/gorm"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MySQLConfig
		want string
	}{
		{
			name: "default local",
			cfg:  config.MySQLConfig{Host: "127.0.0.1", Port: 3306, User: "root", Database: "carpool_7"},
			want: "root@tcp(127.0.0.1:3306)/carpool_7?parseTime=true",
		},
		{
			name: "password and custom port",
			cfg:  config.MySQLConfig{Host: "10.0.0.5", Port: 3307, User: "app", Password: "s3cret", Database: "shared"},
			want: "app:s3cret@tcp(10.0.0.5:3307)/shared?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnectSQLite_EmptyPath(t *testing.T) {
	_, err := ConnectSQLite("")
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if !strings.Contains(err.Error(), "sqlite path is required") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.CacheConfig{Driver: "redis"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "redis"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestOpen_InMemorySQLiteMigrates(t *testing.T) {
	gdb, err := Open(config.CacheConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestConnectMySQL_Error(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := ConnectMySQL(config.MySQLConfig{Host: "127.0.0.1", Port: 1, User: "root", Database: "nonexistent"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestConnectMySQL_Signature(t *testing.T) {
	var fn func(config.MySQLConfig) (*gorm.DB, error) = ConnectMySQL
	if fn == nil {
		t.Fatal("ConnectMySQL function is nil")
	}
}

func TestAllModels_Count(t *testing.T) {
	all := AllModels()
	if len(all) != 2 {
		t.Errorf("AllModels() returned %d models, want 2", len(all))
	}
	if _, ok := all[0].(*models.CachedTrip); !ok {
		t.Errorf("AllModels()[0] = %T, want *models.CachedTrip", all[0])
	}
}

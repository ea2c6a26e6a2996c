package db

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/zulandar/carpool/internal/config"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN for a shared cache database.
func DSN(c config.MySQLConfig) string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Open opens the cache database selected by the config and migrates it.
func Open(c config.CacheConfig) (*gorm.DB, error) {
	var (
		gdb *gorm.DB
		err error
	)
	switch c.Driver {
	case "", "sqlite":
		gdb, err = ConnectSQLite(c.Path)
	case "mysql":
		gdb, err = ConnectMySQL(c.MySQL)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", c.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// ConnectSQLite opens a GORM connection to a local SQLite file. Use
// ":memory:" for an in-process database.
func ConnectSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db: sqlite path is required")
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

// ConnectMySQL opens a GORM connection to a MySQL-compatible database.
func ConnectMySQL(c config.MySQLConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(gormmysql.Open(DSN(c)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", c.Host, c.Port, c.Database, err)
	}
	return gdb, nil
}

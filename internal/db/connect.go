// Package db provides database connection and migration helpers.
package db

import (
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options holds connection settings for the dispatch store.
type Options struct {
	Driver   string // "sqlite" (default) or "mysql"
	Path     string // sqlite file path, ":memory:" allowed
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DSN builds a MySQL DSN from options.
func DSN(opts Options) string {
	cfg := gomysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect opens a GORM connection to the configured store.
func Connect(opts Options) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch opts.Driver {
	case "", "sqlite":
		path := opts.Path
		if path == "" {
			path = "sitemessage.db"
		}
		conn, err := gorm.Open(sqlite.Open(path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s: %w", path, err)
		}
		return conn, nil

	case "mysql":
		conn, err := gorm.Open(mysql.Open(DSN(opts)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", opts.Host, opts.Port, opts.Database, err)
		}
		return conn, nil
	}

	return nil, fmt.Errorf("db: unknown driver %q", opts.Driver)
}

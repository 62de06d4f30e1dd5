package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	driverPostgres      = "postgres"
	driverMySQL         = "mysql"
	driverSQLite        = "sqlite"
	defaultSQLitePath   = "guestledger.db"
	defaultMySQLPort    = "3306"
	defaultMySQLCharset = "utf8mb4"
)

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, target, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(target), cfg)
	case driverMySQL:
		db, err = gorm.Open(gormmysql.Open(target), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(target), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

// resolveDriver picks a gorm dialector from the DSN scheme and returns the
// connection string that dialector expects.
func resolveDriver(dsn string) (string, string, error) {
	trimmed := strings.TrimSpace(dsn)
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		return driverPostgres, trimmed, nil
	}
	if strings.HasPrefix(trimmed, "mysql://") {
		target, err := mysqlDSNFromURL(trimmed)
		return driverMySQL, target, err
	}
	if strings.HasPrefix(trimmed, "sqlite://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		if path == "" || path == "/" {
			path = defaultSQLitePath
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(trimmed)
	return driverSQLite, sqlitePath, err
}

func mysqlDSNFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql url: %w", err)
	}
	databaseName := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || databaseName == "" {
		return "", fmt.Errorf("mysql url needs host and database name")
	}
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), defaultMySQLPort)
	}
	cfg.DBName = databaseName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.Params = map[string]string{"charset": defaultMySQLCharset}
	for key, values := range u.Query() {
		if len(values) > 0 {
			cfg.Params[key] = values[0]
		}
	}
	return cfg.FormatDSN(), nil
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

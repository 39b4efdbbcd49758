package db

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"pctasks/app/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the record store database. Each caller owns the returned
// handle and releases it with Close.
func Open(cfg config.RecordStoreConfig) (*gorm.DB, error) {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 5
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 3600
	}

	uri, err := url.Parse(cfg.Connection)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch uri.Scheme {
	case "sqlite":
		dialector = sqlite.Open(uri.Path + "?_busy_timeout=10000")
		// sqlite allows a single writer
		cfg.PoolSize = 1
	case "mysql":
		connStr := fmt.Sprintf("%s@tcp(%s)%s?%s", uri.User.String(), uri.Host, uri.Path, uri.RawQuery)
		dialector = mysql.Open(connStr)
	}

	if dialector == nil {
		return nil, errors.New(fmt.Sprintf("dialector '%s' is not supported", uri.Scheme))
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		conn = conn.Debug()
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.PoolSize)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.IdleTimeout) * time.Second)
	return conn, nil
}

func Close(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

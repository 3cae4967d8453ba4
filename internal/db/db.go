package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM handle the relational store is built on. The
// schema it migrates (entities, wallets, accounts, transactions, journal
// entries/splits, parse errors, price cache, tax run output) is the
// opaque relational store the rest of the system treats as an external
// collaborator; Store is the only package that opens it directly.
type Database interface {
	GormDB() *gorm.DB
	Close() error
}

type databaseImpl struct {
	gormDB *gorm.DB
}

func NewDatabase(gormDB *gorm.DB) Database {
	return &databaseImpl{gormDB: gormDB}
}

func (d *databaseImpl) GormDB() *gorm.DB {
	return d.gormDB
}

func (d *databaseImpl) Close() error {
	if d.gormDB == nil {
		return nil
	}
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Options configures the connection pool and whether to run AutoMigrate
// on open.
type Options struct {
	DSN             string
	Driver          string // "mysql" or "sqlite"; defaults to "mysql"
	Automigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var allTables = []any{
	&EntityRow{},
	&WalletRow{},
	&AccountRow{},
	&TransactionRow{},
	&JournalEntryRow{},
	&JournalSplitRow{},
	&ParseErrorRow{},
	&PriceCacheRow{},
	&OpenLotRow{},
	&ClosedLotRow{},
	&TaxableTransferRow{},
}

// Open dials the relational store per opt.Driver and optionally
// AutoMigrates the full schema.
func Open(opt Options) (Database, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		PrepareStmt:    true,
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch opt.Driver {
	case "sqlite":
		dialector = sqlite.Open(opt.DSN)
	case "mysql", "":
		dialector = mysql.Open(opt.DSN)
	default:
		return nil, fmt.Errorf("db: unknown driver %q", opt.Driver)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if opt.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opt.MaxOpenConns)
		}
		if opt.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opt.MaxIdleConns)
		}
		if opt.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(opt.ConnMaxLifetime)
		} else {
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
		}
		if opt.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(opt.ConnMaxIdleTime)
		} else {
			sqlDB.SetConnMaxIdleTime(10 * time.Minute)
		}
	}

	if opt.Automigrate {
		if err := gdb.AutoMigrate(allTables...); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	return NewDatabase(gdb), nil
}

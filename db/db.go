package db

import (
	"errors"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotConfigured = errors.New("db: neither MySQL DSN nor SQLite file configured")

// Open connects to MySQL if mysqlDSN is set, otherwise to the SQLite file.
func Open(mysqlDSN, sqliteFile string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case mysqlDSN != "":
		dialector = mysql.Open(mysqlDSN)
	case sqliteFile != "":
		dialector = sqlite.Open(sqliteFile)
	default:
		return nil, ErrNotConfigured
	}
	return gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
}

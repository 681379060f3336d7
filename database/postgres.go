package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"hotspot/api/config"
)

type DBClient struct {
	DB  *sql.DB
	log *zap.Logger
}

func NewPostgresDB(conf config.PostgresConfig, log *zap.Logger) (*DBClient, error) {
	db, err := sql.Open("postgres", conf.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(conf.MaxOpenConns)
	db.SetMaxIdleConns(conf.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	log.Info("Successfully connected to PostgreSQL database")
	return &DBClient{DB: db, log: log}, nil
}

func (c *DBClient) Close() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.log.Error("Error closing database connection", zap.Error(err))
		} else {
			c.log.Info("PostgreSQL database connection closed")
		}
	}
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"hotspot/api/config"
)

type ClickHouseClient struct {
	Conn clickhouse.Conn
	log  *zap.Logger
}

func NewClickHouseDB(conf config.ClickHouseConfig, log *zap.Logger) (*ClickHouseClient, error) {
	if conf.Host == "" || conf.NativePort == 0 || conf.Database == "" {
		return nil, fmt.Errorf("clickhouse host, native port and database must be configured")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", conf.Host, conf.NativePort)},
		Auth: clickhouse.Auth{
			Database: conf.Database,
			Username: conf.Username,
			Password: conf.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "hotspot-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("Successfully connected to ClickHouse database", zap.String("addr", options.Addr[0]))
	return &ClickHouseClient{Conn: conn, log: log}, nil
}

// EnsureSchema creates the interaction_events table if it is missing.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	err := c.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS interaction_events (
			event_id    String,
			session_id  String,
			site_id     Int64,
			device_type LowCardinality(String),
			event_type  LowCardinality(String),
			timestamp   DateTime64(3, 'UTC'),
			page_url    String,
			event_data  String
		)
		ENGINE = MergeTree
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (site_id, timestamp, event_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create interaction_events table: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn != nil {
		c.Conn.Close()
		c.log.Info("ClickHouse connection closed")
	}
}

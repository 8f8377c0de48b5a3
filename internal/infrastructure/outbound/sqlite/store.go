package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
)

var _ ports.SessionStore = (*Store)(nil)

// sessionRow is one committed session. Rows are keyed by vehicle, date and
// anchor identifier, so re-running a batch updates rather than duplicates.
type sessionRow struct {
	SessionKey string    `gorm:"primaryKey;type:varchar(512)"`
	RunID      string    `gorm:"type:varchar(36);index:idx_session_run"`
	VehicleID  string    `gorm:"index:idx_session_vehicle,priority:1"`
	StartTime  time.Time `gorm:"index:idx_session_vehicle,priority:2"`
	EndTime    time.Time
	Date       string `gorm:"type:varchar(10)"`

	CANFile       string
	GPSFile       string
	StabilityFile string
	BeaconFile    string

	GPSDeltaMinutes       float64
	StabilityDeltaMinutes float64
	BeaconDeltaMinutes    float64

	Score     float64
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

// Store persists sessions in a SQLite database.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from gorm: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between workers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate session schema: %w", err)
	}

	return &Store{db: db, sqlDB: sqlDB}, nil
}

// deleteChunk bounds the vehicle ids bound into one DELETE statement.
const deleteChunk = 500

// SaveSessions implements ports.SessionStore.
func (s *Store) SaveSessions(ctx context.Context, runID string, vehicles []string, sessions []telemetry.Session) error {
	if len(vehicles) == 0 && len(sessions) == 0 {
		return nil
	}
	rows := make([]sessionRow, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, toRow(runID, sess))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(vehicles); start += deleteChunk {
			chunk := vehicles[start:min(start+deleteChunk, len(vehicles))]
			err := tx.Where("vehicle_id IN ? AND run_id <> ?", chunk, runID).
				Delete(&sessionRow{}).Error
			if err != nil {
				return err
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_key"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

// SessionsByVehicle implements ports.SessionStore.
func (s *Store) SessionsByVehicle(ctx context.Context, vehicleID string) ([]telemetry.Session, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("start_time ASC").
		Order("session_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	out := make([]telemetry.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&sessionRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Close implements ports.SessionStore.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toRow(runID string, sess telemetry.Session) sessionRow {
	return sessionRow{
		SessionKey:            sess.Key(),
		RunID:                 runID,
		VehicleID:             sess.VehicleID,
		StartTime:             sess.StartTime.UTC(),
		EndTime:               sess.EndTime.UTC(),
		Date:                  sess.Date.Format(time.DateOnly),
		CANFile:               sess.Files[telemetry.StreamCAN].Identifier,
		GPSFile:               sess.Files[telemetry.StreamGPS].Identifier,
		StabilityFile:         sess.Files[telemetry.StreamStability].Identifier,
		BeaconFile:            sess.Files[telemetry.StreamBeacon].Identifier,
		GPSDeltaMinutes:       sess.TimeDeltas[telemetry.StreamGPS].Minutes(),
		StabilityDeltaMinutes: sess.TimeDeltas[telemetry.StreamStability].Minutes(),
		BeaconDeltaMinutes:    sess.TimeDeltas[telemetry.StreamBeacon].Minutes(),
		Score:                 sess.Score,
	}
}

func fromRow(r sessionRow) (telemetry.Session, error) {
	date, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return telemetry.Session{}, fmt.Errorf("failed to parse stored date %q: %w", r.Date, err)
	}
	file := func(st telemetry.StreamType, id string) telemetry.FileRecord {
		return telemetry.FileRecord{VehicleID: r.VehicleID, StreamType: st, Identifier: id}
	}
	minutes := func(m float64) time.Duration {
		return time.Duration(m * float64(time.Minute))
	}
	return telemetry.Session{
		RunID:     r.RunID,
		VehicleID: r.VehicleID,
		Date:      date,
		Files: map[telemetry.StreamType]telemetry.FileRecord{
			telemetry.StreamCAN:       file(telemetry.StreamCAN, r.CANFile),
			telemetry.StreamGPS:       file(telemetry.StreamGPS, r.GPSFile),
			telemetry.StreamStability: file(telemetry.StreamStability, r.StabilityFile),
			telemetry.StreamBeacon:    file(telemetry.StreamBeacon, r.BeaconFile),
		},
		StartTime: r.StartTime.UTC(),
		EndTime:   r.EndTime.UTC(),
		Score:     r.Score,
		TimeDeltas: map[telemetry.StreamType]time.Duration{
			telemetry.StreamGPS:       minutes(r.GPSDeltaMinutes),
			telemetry.StreamStability: minutes(r.StabilityDeltaMinutes),
			telemetry.StreamBeacon:    minutes(r.BeaconDeltaMinutes),
		},
	}, nil
}

// Package store keeps decoded readings in SQLite and exports them per user.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"i4.energy/across/nbiotgw/payload"
)

// AllSensors selects every sensor in Export.
const AllSensors = "all"

// ReceivedLayout formats the receive time in exports as day of month and
// wall clock.
const ReceivedLayout = "02/15:04:05"

// Reading is one stored sample.
type Reading struct {
	ID              uint      `gorm:"primaryKey"`
	User            string    `gorm:"index:idx_user_sensor"`
	Sensor          string    `gorm:"index:idx_user_sensor"`
	Value           float64
	SampleTimestamp string
	ReceivedAt      time.Time
}

type Store struct {
	db *gorm.DB
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Reading{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add stores every value of records for user. A record with a single
// timestamp applies it to all of its values; values without a timestamp
// are stored with an empty one. It returns the number of rows written.
func (s *Store) Add(ctx context.Context, user string, records []*payload.Record, received time.Time) (int, error) {
	var rows []Reading
	for _, r := range records {
		timestamps := r.ExpandTimestamps()
		for i, v := range r.Values() {
			row := Reading{User: user, Sensor: r.Identifier(), Value: v, ReceivedAt: received}
			if i < len(timestamps) {
				row.SampleTimestamp = timestamps[i]
			}
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("failed to save readings: %w", err)
	}
	return len(rows), nil
}

// Readings returns the readings of user in insertion order, limited to
// sensor unless it is AllSensors.
func (s *Store) Readings(ctx context.Context, user, sensor string) ([]Reading, error) {
	query := s.db.WithContext(ctx).Where("user = ?", user)
	if sensor != AllSensors {
		query = query.Where("sensor = ?", sensor)
	}
	var readings []Reading
	if err := query.Order("sensor").Order("id").Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	return readings, nil
}

// Export writes one line per reading of user:
//
//	userid, <user>, <sensor>, <value>, sample_timestamp, <ts>, received timestamp, <day/time>
func (s *Store) Export(ctx context.Context, user, sensor string, w io.Writer) (int, error) {
	readings, err := s.Readings(ctx, user, sensor)
	if err != nil {
		return 0, err
	}
	for _, r := range readings {
		_, err := fmt.Fprintf(w, "userid, %s, %s, %s, sample_timestamp, %s, received timestamp, %s\n",
			r.User, r.Sensor, strconv.FormatFloat(r.Value, 'g', -1, 64), r.SampleTimestamp, r.ReceivedAt.Format(ReceivedLayout))
		if err != nil {
			return 0, err
		}
	}
	return len(readings), nil
}

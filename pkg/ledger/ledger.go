// Package ledger keeps a local record of every capability invocation the
// agent executed, including failures. It never stores the transcript.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ncruces/go-sqlite3/gormlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/ncruces/go-sqlite3/embed"
)

type Entry struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	Session string `gorm:"index"`
	CallID  string

	Tool string
	Args datatypes.JSON

	// empty on success, otherwise the error kind
	Kind   string
	Result string
}

func (Entry) TableName() string {
	return "invocations"
}

func (e Entry) Failed() bool {
	return e.Kind != ""
}

type Ledger struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}

	db, err := gorm.Open(gormlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})

	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	if len(entry.Args) == 0 || !json.Valid(entry.Args) {
		data, _ := json.Marshal(string(entry.Args))
		entry.Args = datatypes.JSON(data)
	}

	return l.db.WithContext(ctx).Create(&entry).Error
}

// List returns the latest entries, newest first. A limit <= 0 returns all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry

	query := l.db.WithContext(ctx).Order("id desc")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

func (l *Ledger) Close() error {
	db, err := l.db.DB()

	if err != nil {
		return err
	}

	return db.Close()
}

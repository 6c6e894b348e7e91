// Package archive mirrors committed ledger events into a durable,
// queryable read-model via gorm, fed off the ledger's best-effort append
// hook. It never sits on the write path: a failure here never unwinds a
// core ledger append.
package archive

import (
	"time"

	"gorm.io/gorm"
)

// EventRecord is the gorm-mapped row for one ledger event.
type EventRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	Sequence    int    `gorm:"index"`
	Timestamp   string `gorm:"index;size:32"`
	Type        string `gorm:"index;size:32"`
	ActorID     string `gorm:"index;size:128"`
	BlueprintID string `gorm:"index;size:64"`
	PrevHash    string `gorm:"size:64"`
	EventHash   string `gorm:"size:64"`
	CreatedAt   time.Time
	CCChanges   []CCChangeRecord `gorm:"constraint:OnDelete:CASCADE"`
}

// CCChangeRecord is the gorm-mapped row for one CC balance change folded
// into an event.
type CCChangeRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventID   string `gorm:"index;size:64"`
	AccountID string `gorm:"index;size:128"`
	Delta     int64
	Reason    string `gorm:"size:64"`
}

// AutoMigrate creates or updates the archive's schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &CCChangeRecord{})
}

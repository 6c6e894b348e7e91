package archive

import (
	"fmt"
	"time"

	"civicrun/ledger"

	"gorm.io/gorm"
)

// Store is a gorm-backed read-model mirroring ledger events. It is fed
// exclusively through Hook, registered via Ledger.OnAppend; nothing in the
// core write path depends on it.
type Store struct {
	db *gorm.DB
}

// Open wraps an already-connected gorm.DB and ensures the archive schema
// exists.
func Open(db *gorm.DB) (*Store, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Hook returns a ledger.AppendHook that mirrors ev into the archive. Register
// it with Ledger.OnAppend during runtime wiring.
func (s *Store) Hook() ledger.AppendHook {
	return func(ev ledger.Event) error {
		return s.record(ev)
	}
}

func (s *Store) record(ev ledger.Event) error {
	rec := EventRecord{
		ID:          ev.ID,
		Sequence:    ev.Sequence,
		Timestamp:   ev.Timestamp,
		Type:        string(ev.Type),
		ActorID:     ev.ActorID,
		BlueprintID: ev.BlueprintID,
		PrevHash:    ev.PrevHash,
		EventHash:   ev.EventHash,
		CreatedAt:   time.Now().UTC(),
	}
	for _, cc := range ev.CCChanges {
		rec.CCChanges = append(rec.CCChanges, CCChangeRecord{
			EventID:   ev.ID,
			AccountID: cc.AccountID,
			Delta:     cc.Delta,
			Reason:    cc.Reason,
		})
	}
	return s.db.Create(&rec).Error
}

// EventsForAccount returns every archived event that folded in a CC change
// for accountID, most recent first.
func (s *Store) EventsForAccount(accountID string) ([]EventRecord, error) {
	var recs []EventRecord
	err := s.db.
		Joins("JOIN cc_change_records ON cc_change_records.event_id = event_records.id").
		Where("cc_change_records.account_id = ?", accountID).
		Preload("CCChanges").
		Order("event_records.sequence DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("archive: query account events: %w", err)
	}
	return recs, nil
}

// EventsBetween returns every archived event with timestamp in [start, end).
func (s *Store) EventsBetween(start, end string) ([]EventRecord, error) {
	var recs []EventRecord
	err := s.db.
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Preload("CCChanges").
		Order("sequence ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("archive: query events between: %w", err)
	}
	return recs, nil
}

// Count returns the number of events currently archived.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.Model(&EventRecord{}).Count(&n).Error
	return n, err
}

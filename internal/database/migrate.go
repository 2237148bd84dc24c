package database

import (
	"fmt"

	"github.com/fowlengine/missioncore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const copyBatchSize = 1000

// CopySessions copies every session in src into dst, with its ticks, zone
// states, events and performance samples, in one transaction. Row IDs are
// reassigned by dst. Sessions dst already holds are skipped. It returns the
// number of sessions copied.
func CopySessions(src, dst *gorm.DB) (int, error) {
	var sessions []model.Session
	if err := src.Order("id").Find(&sessions).Error; err != nil {
		return 0, fmt.Errorf("reading sessions: %w", err)
	}

	copied := 0
	err := dst.Transaction(func(tx *gorm.DB) error {
		for _, s := range sessions {
			from := s.ID
			s.ID = 0
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&s)
			if res.Error != nil {
				return fmt.Errorf("copying session %s: %w", s.SessionID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			to := s.ID

			if err := copyRows(src, tx, from, func(r *model.TickRecord) { r.ID, r.SessionID = 0, to }); err != nil {
				return fmt.Errorf("copying ticks of %s: %w", s.SessionID, err)
			}
			if err := copyRows(src, tx, from, func(r *model.ZoneState) { r.ID, r.SessionID = 0, to }); err != nil {
				return fmt.Errorf("copying zone states of %s: %w", s.SessionID, err)
			}
			if err := copyRows(src, tx, from, func(r *model.Event) { r.ID, r.SessionID = 0, to }); err != nil {
				return fmt.Errorf("copying events of %s: %w", s.SessionID, err)
			}
			if err := copyRows(src, tx, from, func(r *model.EnginePerformance) { r.SessionID = to }); err != nil {
				return fmt.Errorf("copying performance of %s: %w", s.SessionID, err)
			}
			copied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// copyRows moves the rows of one session table, letting reset rewrite the
// keys before insertion.
func copyRows[M any](src, dst *gorm.DB, sessionID uint, reset func(*M)) error {
	var rows []M
	if err := src.Where("session_id = ?", sessionID).Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		reset(&rows[i])
	}
	return dst.CreateInBatches(rows, copyBatchSize).Error
}

package db

import (
	"errors"
	"strconv"

	"github.com/blacktop/fptrace/internal/model"
	"gorm.io/gorm"
)

// store holds the queries shared by the gorm backed databases
type store struct {
	db *gorm.DB
}

func (s *store) migrate() error {
	return s.db.AutoMigrate(&model.Run{})
}

// Save creates or overwrites a run.
func (s *store) Save(run *model.Run) error {
	if result := s.db.Save(run); result.Error != nil {
		return result.Error
	}
	return nil
}

// Get returns the run with the given id.
func (s *store) Get(id string) (*model.Run, error) {
	var run model.Run
	if err := s.db.Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// List returns the runs of a target, oldest first.
func (s *store) List(target string) ([]*model.Run, error) {
	var runs []*model.Run
	tx := s.db.Order("created_at asc")
	if target != "" {
		tx = tx.Where("target = ?", target)
	}
	if err := tx.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// FindByHash returns the runs sharing a trace hash.
func (s *store) FindByHash(hash uint64) ([]*model.Run, error) {
	var runs []*model.Run
	if err := s.db.Where("hash = ?", strconv.FormatUint(hash, 10)).Order("created_at asc").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Delete removes the given run.
func (s *store) Delete(id string) error {
	result := s.db.Delete(&model.Run{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *store) Close() error {
	if s.db == nil {
		return nil
	}
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

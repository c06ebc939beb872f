package dao

import (
	"time"

	"github.com/reusedev/gen-hub/internal/modules/model"
	"gorm.io/gorm"
)

// GenerationStore persists intake rows, generation metadata and gallery
// index rows.
type GenerationStore struct {
	db *gorm.DB
}

func NewGenerationStore(db *gorm.DB) *GenerationStore {
	return &GenerationStore{db: db}
}

func (s *GenerationStore) CreateRequest(req *model.GenerationRequest) error {
	return s.db.Model(&model.GenerationRequest{}).Create(req).Error
}

func (s *GenerationStore) SaveGeneration(gen *model.Generation) error {
	return s.db.Model(&model.Generation{}).Create(gen).Error
}

func (s *GenerationStore) GenerationByGenerationId(generationId string) (*model.Generation, error) {
	var gen model.Generation
	err := s.db.Model(&model.Generation{}).Where("generation_id = ?", generationId).First(&gen).Error
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

func (s *GenerationStore) UpdateGenerationStatus(generationId, status string) error {
	return s.db.Model(&model.Generation{}).
		Where("generation_id = ?", generationId).
		Updates(map[string]any{"run_status": status, "updated_at": time.Now()}).Error
}

func (s *GenerationStore) CreateGalleryItem(item *model.GalleryItem) error {
	return s.db.Model(&model.GalleryItem{}).Create(item).Error
}

func (s *GenerationStore) GalleryByUser(userId string, limit int) ([]model.GalleryItem, error) {
	var items []model.GalleryItem
	err := s.db.Model(&model.GalleryItem{}).
		Where("user_id = ?", userId).
		Order("indexed_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

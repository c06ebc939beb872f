package model

import "time"

// GalleryItem makes a finished generation discoverable to its owner.
type GalleryItem struct {
	Id           int       `json:"id" gorm:"primaryKey"`
	UserId       string    `json:"user_id" gorm:"column:user_id;type:varchar(50);index"`
	GenerationId string    `json:"generation_id" gorm:"column:generation_id;type:varchar(50);uniqueIndex"`
	ArtifactKey  string    `json:"artifact_key" gorm:"column:artifact_key;type:varchar(500)"`
	ThumbnailKey string    `json:"thumbnail_key" gorm:"column:thumbnail_key;type:varchar(500)"`
	IndexedAt    time.Time `json:"indexed_at" gorm:"column:indexed_at;type:datetime;not null;default:CURRENT_TIMESTAMP"`
}

func (*GalleryItem) TableName() string {
	return "gallery_item"
}

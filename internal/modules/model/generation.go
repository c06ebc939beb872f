package model

import "time"

// GenerationRequest is the immutable intake row. It is written once at
// intake and never updated; the pipeline references it by GenerationId.
type GenerationRequest struct {
	Id           int       `json:"id" gorm:"primaryKey"`
	GenerationId string    `json:"generation_id" gorm:"column:generation_id;type:varchar(50);uniqueIndex"`
	UserId       string    `json:"user_id" gorm:"column:user_id;type:varchar(50);index"`
	Mode         string    `json:"mode" gorm:"column:mode;type:enum('images', 'video', 'enhance')"`
	Model        string    `json:"model" gorm:"column:model;type:varchar(50)"`
	Prompt       string    `json:"prompt" gorm:"column:prompt;type:varchar(5000)"`
	Params       string    `json:"params" gorm:"column:params;type:varchar(5000)"` // json-encoded parameter map
	SourceImages string    `json:"source_images" gorm:"column:source_images;type:varchar(2000)"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;type:datetime;not null;default:CURRENT_TIMESTAMP"`
}

func (*GenerationRequest) TableName() string {
	return "generation_request"
}

// Generation is the durable metadata row written by the persist_metadata
// stage once the artifact is in object storage.
type Generation struct {
	Id           int       `json:"id" gorm:"primaryKey"`
	GenerationId string    `json:"generation_id" gorm:"column:generation_id;type:varchar(50);uniqueIndex"`
	UserId       string    `json:"user_id" gorm:"column:user_id;type:varchar(50);index"`
	Mode         string    `json:"mode" gorm:"column:mode;type:enum('images', 'video', 'enhance')"`
	Model        string    `json:"model" gorm:"column:model;type:varchar(50)"`
	Params       string    `json:"params" gorm:"column:params;type:varchar(5000)"`
	ArtifactKey  string    `json:"artifact_key" gorm:"column:artifact_key;type:varchar(500)"`
	ArtifactURL  string    `json:"artifact_url" gorm:"column:artifact_url;type:varchar(2000)"`
	CostRecordId string    `json:"cost_record_id" gorm:"column:cost_record_id;type:varchar(50)"`
	RunStatus    string    `json:"run_status" gorm:"column:run_status;type:varchar(20)"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;type:datetime;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;type:datetime;not null;default:CURRENT_TIMESTAMP"`
}

func (*Generation) TableName() string {
	return "generation"
}

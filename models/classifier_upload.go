package models

import (
	"gorm.io/gorm"
)

const (
	UploadLoaded = "loaded"
	UploadFailed = "failed"
)

// ClassifierUpload records one classifier file received over HTTP.
type ClassifierUpload struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	CreatedAt int64  `json:"created_at"`
	Size      int64  `json:"size"`
	Sha512    string `gorm:"type:varchar(128);index" json:"sha512"`
	Labels    int    `json:"labels"`
	Status    string `gorm:"type:varchar(20)" json:"status"`
	Error     string `gorm:"type:text" json:"error,omitempty"`
}

func Init(db *gorm.DB) error {
	return db.AutoMigrate(&ClassifierUpload{})
}

func (u *ClassifierUpload) Create(db *gorm.DB) error {
	return db.Create(u).Error
}

// RecentUploads returns up to limit uploads, newest first.
func RecentUploads(db *gorm.DB, limit int) (uploads []ClassifierUpload, err error) {
	err = db.Order("id DESC").Limit(limit).Find(&uploads).Error
	return
}

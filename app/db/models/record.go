package models

import (
	"time"

	"pctasks/pkg/gormx"
)

var Models = []interface{}{
	&Record{},
}

// Record is one document of a record store container. Container plus
// partition key plus id is unique; Type tells the typed container which
// documents are its own.
type Record struct {
	Container    string        `gorm:"primaryKey;size:64"`
	PartitionKey string        `gorm:"primaryKey;size:255"`
	ID           string        `gorm:"primaryKey;size:255"`
	Type         string        `gorm:"size:64;index"`
	Status       string        `gorm:"size:64;index"`
	Data         gormx.RawJson `gorm:"type:longtext"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index;autoUpdateTime:false"`
}

func (Record) TableName() string {
	return "records"
}

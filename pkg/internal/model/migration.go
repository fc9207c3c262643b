package model

import "time"

// SchemaMigration 迁移台账，每个已应用的版本一行.
type SchemaMigration struct {
	Version   int       `gorm:"column:version;primaryKey;autoIncrement:false" json:"version"`
	Name      string    `gorm:"column:name;size:255;not null"                 json:"name"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"                    json:"applied_at"`
}

// TableName 台账表名.
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

package model

import (
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var snowflakeNode *snowflake.Node

var Models = []interface{}{
	&User{}, &Team{}, &Portal{}, &UserData{}, &UserFactor{},
	&AuthToken{}, &AuthLogRecord{},
}

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

func GenerateID() uint {
	return uint(snowflakeNode.Generate())
}

// GenerateUUID returns the string id used by portals, tokens and log records.
func GenerateUUID() string {
	return uuid.NewString()
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models...)
}

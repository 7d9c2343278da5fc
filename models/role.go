package models

import "gorm.io/gorm"

// RoleRecord is one row of the role ledger: a boosting member's custom
// role and the members they have gifted it to. GiftedTo is a
// JSON-encoded list of user IDs, oldest gift first.
type RoleRecord struct {
	gorm.Model
	UserID   string `gorm:"uniqueIndex"`
	RoleID   string
	GiftedTo string
	Boosts   int
}

// GuildSettings stores per-guild channel configuration.
type GuildSettings struct {
	gorm.Model
	GuildID        string `gorm:"uniqueIndex"`
	BoostChannelID string
}

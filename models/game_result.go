package models

import (
	"time"
)

// GameResult archives a finished game. Written once when a room's game ends;
// the live room state itself lives in Redis, not here.
type GameResult struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	RoomCode   string    `json:"room_code" gorm:"not null;index"`
	WinnerID   string    `json:"winner_id" gorm:"not null"`
	WinnerName string    `json:"winner_name" gorm:"not null"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`

	// Relationships
	Standings []GameStanding `json:"standings,omitempty" gorm:"foreignKey:GameResultID"`
}

type GameStanding struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	GameResultID   string `json:"game_result_id" gorm:"not null;index"`
	PlayerID       string `json:"player_id" gorm:"not null"`
	PlayerName     string `json:"player_name" gorm:"not null"`
	Rank           int    `json:"rank" gorm:"not null"`
	Score          int    `json:"score" gorm:"not null"`
	TimelineLength int    `json:"timeline_length" gorm:"not null"`
	BonusPoints    int    `json:"bonus_points" gorm:"not null"`
}

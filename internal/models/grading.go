package models

import "time"

// GradingInstance is an advanced grading evaluation of one grade item.
type GradingInstance struct {
	ID           string    `db:"id" json:"id"`
	DefinitionID string    `db:"definition_id" json:"definition_id"`
	ContextID    string    `db:"context_id" json:"context_id"`
	ItemID       string    `db:"item_id" json:"item_id"`
	RaterID      string    `db:"rater_id" json:"rater_id"`
	Status       string    `db:"status" json:"status"`
	Feedback     string    `db:"feedback" json:"feedback"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

package activity

import "time"

// Instance is one notebook activity inside a course.
type Instance struct {
	ID         int64     `json:"id"`
	CourseID   int64     `json:"course"`
	ContextID  int64     `json:"context_id"`
	Name       string    `json:"name"`
	Autograded bool      `json:"autograded"`
	Assignment *string   `json:"assignment,omitempty"` // generated notebook filename, nil until created
	CreatedAt  time.Time `json:"created_at"`
}

// Question holds the configured maximum for one question of an instance.
type Question struct {
	InstanceID int64   `json:"jupyter"`
	QuestionNr int     `json:"questionnr"`
	MaxPoints  float64 `json:"maxpoints"`
}

// Points is the achieved score of one user for one question.
type Points struct {
	ID         int64   `json:"id"`
	InstanceID int64   `json:"jupyter"`
	User       string  `json:"userid"`
	QuestionNr int     `json:"questionnr"`
	Points     float64 `json:"points"`
}

package model

import "time"

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	ShortAnswer    QuestionType = "short-answer"
	Rating         QuestionType = "rating"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, ShortAnswer, Rating:
		return true
	}
	return false
}

type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Survey struct {
	ID          int        `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
	CreatedBy   *User      `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Question struct {
	ID      int          `json:"id,omitempty"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
}

type Response struct {
	ID              int       `json:"id,omitempty"`
	SurveyID        int       `json:"surveyId"`
	SubmittedBy     *User     `json:"submittedBy,omitempty"`
	RespondentName  string    `json:"respondentName,omitempty"`
	RespondentEmail string    `json:"respondentEmail,omitempty"`
	Answers         []Answer  `json:"answers"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// Answer values are untyped strings; how a value is read depends on the
// declared type of the question it references.
type Answer struct {
	QuestionID int    `json:"questionId"`
	Value      string `json:"answer"`
}

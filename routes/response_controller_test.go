package routes

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/pulsehq/pulse-survey/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitResponse(t *testing.T) {
	_, handler := newTestApp(t)
	owner := registerUser(t, handler, "Ada", "ada@example.com")
	survey := createSurvey(t, handler, owner.Token, feedbackSurvey())

	t.Run("anonymous with respondent details", func(t *testing.T) {
		created := submitResponse(t, handler, "", model.Response{
			SurveyID:        survey.ID,
			RespondentName:  "Anon",
			RespondentEmail: "anon@example.com",
			Answers: []model.Answer{
				{QuestionID: survey.Questions[0].ID, Value: "A"},
			},
		})

		assert.NotZero(t, created.ID)
		assert.Nil(t, created.SubmittedBy)
		assert.Equal(t, "Anon", created.RespondentName)
		assert.Equal(t, "anon@example.com", created.RespondentEmail)
		assert.False(t, created.SubmittedAt.IsZero())
	})

	t.Run("authenticated submitter is recorded", func(t *testing.T) {
		voter := registerUser(t, handler, "Bob", "bob@example.com")

		created := submitResponse(t, handler, voter.Token, model.Response{
			SurveyID: survey.ID,
			Answers:  []model.Answer{{QuestionID: survey.Questions[1].ID, Value: "5"}},
		})

		require.NotNil(t, created.SubmittedBy)
		assert.Equal(t, voter.User.ID, created.SubmittedBy.ID)
	})

	t.Run("invalid token still accepted, anonymously", func(t *testing.T) {
		created := submitResponse(t, handler, "not-a-real-token", model.Response{
			SurveyID: survey.ID,
			Answers:  []model.Answer{{QuestionID: survey.Questions[1].ID, Value: "3"}},
		})
		assert.Nil(t, created.SubmittedBy)
	})

	t.Run("missing survey gets 404", func(t *testing.T) {
		w := doRequest(t, handler, "POST", "/api/responses", "", model.Response{SurveyID: 99999})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing surveyId gets 400", func(t *testing.T) {
		w := doRequest(t, handler, "POST", "/api/responses", "", model.Response{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetSurveyResponses(t *testing.T) {
	_, handler := newTestApp(t)
	owner := registerUser(t, handler, "Ada", "ada@example.com")
	other := registerUser(t, handler, "Bob", "bob@example.com")
	survey := createSurvey(t, handler, owner.Token, feedbackSurvey())

	first := submitResponse(t, handler, other.Token, model.Response{
		SurveyID: survey.ID,
		Answers: []model.Answer{
			{QuestionID: survey.Questions[0].ID, Value: "A"},
			{QuestionID: survey.Questions[2].ID, Value: "all good"},
		},
	})
	time.Sleep(10 * time.Millisecond)
	second := submitResponse(t, handler, "", model.Response{
		SurveyID:       survey.ID,
		RespondentName: "Anon",
		Answers:        []model.Answer{{QuestionID: survey.Questions[0].ID, Value: "B"}},
	})

	t.Run("non-owner gets 403", func(t *testing.T) {
		w := doRequest(t, handler, "GET", "/api/responses/survey/"+itoa(survey.ID), other.Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing survey gets 404", func(t *testing.T) {
		w := doRequest(t, handler, "GET", "/api/responses/survey/99999", owner.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("owner sees responses, most recent first", func(t *testing.T) {
		w := doRequest(t, handler, "GET", "/api/responses/survey/"+itoa(survey.ID), owner.Token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		responses := decodeBody[[]model.Response](t, w)
		require.Len(t, responses, 2)

		assert.Equal(t, second.ID, responses[0].ID)
		assert.Equal(t, "Anon", responses[0].RespondentName)
		assert.Nil(t, responses[0].SubmittedBy)

		assert.Equal(t, first.ID, responses[1].ID)
		require.NotNil(t, responses[1].SubmittedBy, "submitter must be resolved")
		assert.Equal(t, "Bob", responses[1].SubmittedBy.Name)
		assert.Len(t, responses[1].Answers, 2)
	})
}

func TestGetSurveyAnalytics(t *testing.T) {
	_, handler := newTestApp(t)
	owner := registerUser(t, handler, "Ada", "ada@example.com")
	other := registerUser(t, handler, "Bob", "bob@example.com")
	survey := createSurvey(t, handler, owner.Token, feedbackSurvey())

	choiceId := survey.Questions[0].ID
	ratingId := survey.Questions[1].ID
	textId := survey.Questions[2].ID

	for _, answers := range [][]model.Answer{
		{{QuestionID: choiceId, Value: "A"}, {QuestionID: ratingId, Value: "3"}, {QuestionID: textId, Value: "fine"}},
		{{QuestionID: choiceId, Value: "A"}, {QuestionID: ratingId, Value: "5"}},
		{{QuestionID: choiceId, Value: "B"}, {QuestionID: ratingId, Value: "bad"}, {QuestionID: textId, Value: "meh"}},
		{{QuestionID: ratingId, Value: "4"}},
	} {
		submitResponse(t, handler, "", model.Response{SurveyID: survey.ID, Answers: answers})
	}

	t.Run("non-owner gets 403", func(t *testing.T) {
		w := doRequest(t, handler, "GET", "/api/responses/analytics/"+itoa(survey.ID), other.Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing survey gets 404", func(t *testing.T) {
		w := doRequest(t, handler, "GET", "/api/responses/analytics/99999", owner.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("owner gets the summary", func(t *testing.T) {
		w := doRequest(t, handler, "GET", "/api/responses/analytics/"+itoa(survey.ID), owner.Token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var summary struct {
			TotalResponses int `json:"totalResponses"`
			Questions      []struct {
				QuestionID int            `json:"questionId"`
				Type       string         `json:"type"`
				Data       map[string]int `json:"data"`
				Average    string         `json:"average"`
				Responses  []int          `json:"responses"`
				Answers    []string       `json:"answers"`
			} `json:"questions"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

		assert.Equal(t, 4, summary.TotalResponses)
		require.Len(t, summary.Questions, 3)

		choice := summary.Questions[0]
		assert.Equal(t, choiceId, choice.QuestionID)
		assert.Equal(t, "multiple-choice", choice.Type)
		assert.Equal(t, map[string]int{"A": 2, "B": 1}, choice.Data)

		rating := summary.Questions[1]
		assert.Equal(t, "rating", rating.Type)
		assert.Equal(t, "4.00", rating.Average)
		assert.ElementsMatch(t, []int{3, 5, 4}, rating.Responses)

		text := summary.Questions[2]
		assert.Equal(t, "short-answer", text.Type)
		assert.Len(t, text.Answers, 2)
		assert.Contains(t, text.Answers, "fine")
		assert.Contains(t, text.Answers, "meh")
	})
}

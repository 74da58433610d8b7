package routes

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pulsehq/pulse-survey/analytics"
	"github.com/pulsehq/pulse-survey/app"
	"github.com/pulsehq/pulse-survey/httpx"
	"github.com/pulsehq/pulse-survey/log"
	"github.com/pulsehq/pulse-survey/model"
	"github.com/pulsehq/pulse-survey/routes/middlewares"
)

func SubmitResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := model.Response{}
		err := render.DecodeJSON(r.Body, &response)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if response.SurveyID == 0 {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "submit_response.validate", "surveyId is required")
			return
		}

		var exists bool
		err = app.QueryRowContext(r.Context(),
			"SELECT 1 FROM survey WHERE id = ?", response.SurveyID,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "submit_response.survey", response.SurveyID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}

		// identified only when a valid bearer token came along
		var submittedBy any
		if user, ok := middlewares.CurrentUser(r); ok {
			submittedBy = user.ID
			response.SubmittedBy = &user
		}
		response.SubmittedAt = time.Now()

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO response (survey_id, submitted_by, respondent_name, respondent_email, submitted_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`,
			response.SurveyID,
			submittedBy,
			response.RespondentName,
			response.RespondentEmail,
			response.SubmittedAt,
		).Scan(&response.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO answer (response_id, question_id, value)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.answers.prepare", err)
			return
		}
		defer stmt.Close()

		for _, a := range response.Answers {
			_, err = stmt.ExecContext(r.Context(), response.ID, a.QuestionID, a.Value)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_response.answers.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, response)
	}
}

func GetSurveyResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := requireSurveyOwner(w, r, app)
		if !ok {
			return
		}

		responses, err := fetchSurveyResponses(r.Context(), app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}

		render.JSON(w, r, responses)
	}
}

func GetSurveyAnalytics(app app.App) http.HandlerFunc {
	type responsesFetch struct {
		responses []model.Response
		err       error
	}

	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middlewares.CurrentUser(r)
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "analytics.user")
			return
		}

		surveyId, err := strconv.Atoi(chi.URLParam(r, "surveyId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.surveyId")
			return
		}

		// the survey and its responses are independent fetches
		fetched := make(chan responsesFetch, 1)
		go func() {
			responses, err := fetchSurveyResponses(r.Context(), app, surveyId)
			fetched <- responsesFetch{responses, err}
		}()

		survey, err := fetchSurvey(r.Context(), app, surveyId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "analytics.survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}
		if survey.CreatedBy.ID != user.ID {
			httpx.LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, "analytics.owner", "not authorized")
			return
		}

		fetch := <-fetched
		if fetch.err != nil {
			httpx.LogInternalError(w, "db.get_responses", fetch.err)
			return
		}

		summary := analytics.Summarize(survey.Questions, fetch.responses)
		render.JSON(w, r, summary)
	}
}

// requireSurveyOwner parses the surveyId URL param and verifies the caller
// owns that survey, sending 401/404/403 as appropriate.
func requireSurveyOwner(w http.ResponseWriter, r *http.Request, app app.App) (int, bool) {
	user, ok := middlewares.CurrentUser(r)
	if !ok {
		httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "survey_owner.user")
		return 0, false
	}

	surveyId, err := strconv.Atoi(chi.URLParam(r, "surveyId"))
	if err != nil {
		httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.surveyId")
		return 0, false
	}

	var ownerId int
	err = app.QueryRowContext(r.Context(),
		"SELECT owner_id FROM survey WHERE id = ?", surveyId,
	).Scan(&ownerId)
	if errors.Is(err, sql.ErrNoRows) {
		httpx.LogNotFound(w, "survey_owner", surveyId)
		return 0, false
	}
	if err != nil {
		httpx.LogInternalError(w, "db.get_survey.owner", err)
		return 0, false
	}
	if ownerId != user.ID {
		httpx.LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, "survey_owner", "not authorized")
		return 0, false
	}

	return surveyId, true
}

// fetchSurveyResponses loads all responses to a survey, most recent first,
// with the submitter's profile resolved when one was recorded.
func fetchSurveyResponses(ctx context.Context, app app.App, surveyId int) ([]model.Response, error) {
	rows, err := app.QueryContext(ctx, `
		SELECT
			r.id, r.survey_id, r.respondent_name, r.respondent_email, r.submitted_at,
			u.id, u.name, u.email,
			a.question_id, a.value
		FROM response r
		LEFT OUTER JOIN user u ON (u.id = r.submitted_by)
		LEFT OUTER JOIN answer a ON (a.response_id = r.id)
		WHERE r.survey_id = ?
		ORDER BY r.submitted_at DESC, r.id DESC, a.id`,
		surveyId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []model.Response{}
	for rows.Next() {
		resp := model.Response{}
		var uId sql.NullInt64
		var uName, uEmail sql.NullString
		var aQuestionId sql.NullInt64
		var aValue sql.NullString

		err = rows.Scan(
			&resp.ID, &resp.SurveyID, &resp.RespondentName, &resp.RespondentEmail, &resp.SubmittedAt,
			&uId, &uName, &uEmail,
			&aQuestionId, &aValue,
		)
		if err != nil {
			return nil, err
		}

		lastIdx := len(responses) - 1
		if lastIdx < 0 || responses[lastIdx].ID != resp.ID {
			if uId.Valid {
				resp.SubmittedBy = &model.User{
					ID:    int(uId.Int64),
					Name:  uName.String,
					Email: uEmail.String,
				}
			}
			resp.Answers = []model.Answer{}
			responses = append(responses, resp)
			lastIdx++
		}

		if aQuestionId.Valid {
			responses[lastIdx].Answers = append(responses[lastIdx].Answers, model.Answer{
				QuestionID: int(aQuestionId.Int64),
				Value:      aValue.String,
			})
		}
	}
	return responses, rows.Err()
}

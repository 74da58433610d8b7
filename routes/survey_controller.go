package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pulsehq/pulse-survey/app"
	"github.com/pulsehq/pulse-survey/httpx"
	"github.com/pulsehq/pulse-survey/log"
	"github.com/pulsehq/pulse-survey/model"
	"github.com/pulsehq/pulse-survey/routes/middlewares"
)

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middlewares.CurrentUser(r)
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "create_survey.user")
			return
		}

		survey := model.Survey{}
		err := render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if survey.Title == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_survey.validate", "title is required")
			return
		}
		for i := range survey.Questions {
			q := &survey.Questions[i]
			if !q.Type.Valid() {
				httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_survey.validate", "unknown question type %q", q.Type)
				return
			}
			// options only make sense on multiple-choice questions
			if q.Type != model.MultipleChoice {
				q.Options = nil
			}
		}

		if survey.Questions == nil {
			survey.Questions = []model.Question{}
		}
		survey.CreatedBy = &user
		survey.CreatedAt = time.Now()

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO survey (title, description, owner_id, created_at) VALUES (?, ?, ?, ?)
			RETURNING id`,
			survey.Title,
			survey.Description,
			user.ID,
			survey.CreatedAt,
		).Scan(&survey.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO question (survey_id, position, text, type, options)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.questions.prepare", err)
			return
		}
		defer stmt.Close()

		for i := range survey.Questions {
			q := &survey.Questions[i]

			var optionsJson []byte
			if len(q.Options) > 0 {
				optionsJson, err = json.Marshal(q.Options)
				if err != nil {
					httpx.LogInternalError(w, "db.insert_survey.questions.parse_options", err)
					return
				}
			}

			err = stmt.
				QueryRowContext(r.Context(), survey.ID, i, q.Text, string(q.Type), string(optionsJson)).
				Scan(&q.ID)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_survey.questions.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, survey)
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT
				s.id, s.title, s.description, s.created_at,
				u.id, u.name, u.email,
				q.id, q.text, q.type, q.options
			FROM survey s
			INNER JOIN user u ON (u.id = s.owner_id)
			LEFT OUTER JOIN question q ON (q.survey_id = s.id)
			ORDER BY s.id, q.position`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}
		defer rows.Close()

		surveys, err := scanSurveyRows(rows)
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys.scan", err)
			return
		}

		render.JSON(w, r, surveys)
	}
}

func MySurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middlewares.CurrentUser(r)
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "my_surveys.user")
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT
				s.id, s.title, s.description, s.created_at,
				u.id, u.name, u.email,
				q.id, q.text, q.type, q.options
			FROM survey s
			INNER JOIN user u ON (u.id = s.owner_id)
			LEFT OUTER JOIN question q ON (q.survey_id = s.id)
			WHERE s.owner_id = ?
			ORDER BY s.id, q.position`,
			user.ID,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_my_surveys", err)
			return
		}
		defer rows.Close()

		surveys, err := scanSurveyRows(rows)
		if err != nil {
			httpx.LogInternalError(w, "db.get_my_surveys.scan", err)
			return
		}

		render.JSON(w, r, surveys)
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, err := fetchSurvey(r.Context(), app, surveyId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}

		render.JSON(w, r, survey)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middlewares.CurrentUser(r)
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "delete_survey.user")
			return
		}

		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var ownerId int
		err = app.QueryRowContext(r.Context(),
			"SELECT owner_id FROM survey WHERE id = ?", surveyId,
		).Scan(&ownerId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "delete_survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.owner", err)
			return
		}
		if ownerId != user.ID {
			httpx.LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, "delete_survey.owner", "not authorized")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// responses are kept: they reference the survey by id only
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM question
			WHERE survey_id = ?`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey.questions", err)
			return
		}

		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM survey WHERE id = ?`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey.commit", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"message": "survey deleted",
		})
	}
}

// fetchSurvey loads one survey with its owner and ordered questions.
// Returns sql.ErrNoRows when the id does not resolve.
func fetchSurvey(ctx context.Context, app app.App, surveyId int) (survey model.Survey, err error) {
	rows, err := app.QueryContext(ctx, `
		SELECT
			s.id, s.title, s.description, s.created_at,
			u.id, u.name, u.email,
			q.id, q.text, q.type, q.options
		FROM survey s
		INNER JOIN user u ON (u.id = s.owner_id)
		LEFT OUTER JOIN question q ON (q.survey_id = s.id)
		WHERE s.id = ?
		ORDER BY q.position`,
		surveyId,
	)
	if err != nil {
		return
	}
	defer rows.Close()

	surveys, err := scanSurveyRows(rows)
	if err != nil {
		return
	}
	if len(surveys) == 0 {
		err = sql.ErrNoRows
		return
	}
	return surveys[0], nil
}

// scanSurveyRows groups survey/owner/question rows into surveys, one per
// distinct survey id, questions in scan order.
func scanSurveyRows(rows *sql.Rows) ([]model.Survey, error) {
	surveys := []model.Survey{}
	for rows.Next() {
		s := model.Survey{}
		owner := model.User{}
		var qId sql.NullInt64
		var qText, qType, qOptions sql.NullString

		err := rows.Scan(
			&s.ID, &s.Title, &s.Description, &s.CreatedAt,
			&owner.ID, &owner.Name, &owner.Email,
			&qId, &qText, &qType, &qOptions,
		)
		if err != nil {
			return nil, err
		}

		lastIdx := len(surveys) - 1
		if lastIdx < 0 || surveys[lastIdx].ID != s.ID {
			s.CreatedBy = &owner
			s.Questions = []model.Question{}
			surveys = append(surveys, s)
			lastIdx++
		}

		if qId.Valid {
			q := model.Question{
				ID:   int(qId.Int64),
				Text: qText.String,
				Type: model.QuestionType(qType.String),
			}
			if qOptions.String != "" {
				err = json.Unmarshal([]byte(qOptions.String), &q.Options)
				if err != nil {
					return nil, err
				}
			}
			surveys[lastIdx].Questions = append(surveys[lastIdx].Questions, q)
		}
	}
	return surveys, rows.Err()
}

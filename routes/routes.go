package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pulsehq/pulse-survey/app"
	"github.com/pulsehq/pulse-survey/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/auth/register", Register(app))
	api.Post("/auth/login", Login(app))
	api.Post("/auth/refresh", Refresh(app))

	api.Get("/surveys", ListSurveys(app))
	api.Get(`/surveys/{id:^\d+$}`, GetSurveyById(app))

	api.Group(func(r chi.Router) {
		r.Use(middlewares.Authenticated(app.TokenSecret))

		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys/my-surveys", MySurveys(app))
		r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(app))

		r.Get(`/responses/survey/{surveyId:^\d+$}`, GetSurveyResponses(app))
		r.Get(`/responses/analytics/{surveyId:^\d+$}`, GetSurveyAnalytics(app))
	})

	api.
		With(middlewares.MaybeAuthenticated(app.TokenSecret)).
		Post("/responses", SubmitResponse(app))

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

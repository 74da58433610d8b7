package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/pulsehq/pulse-survey/config"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
}

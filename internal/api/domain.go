package api

import (
	"github.com/tariffdesk/tariffdesk/internal/config"
	"github.com/tariffdesk/tariffdesk/internal/exceptions"
	"github.com/tariffdesk/tariffdesk/internal/runs"
	"github.com/tariffdesk/tariffdesk/internal/sessions"
	"github.com/tariffdesk/tariffdesk/internal/settings"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Settings   settings.System
	Sessions   sessions.System
	Runs       runs.System
	Exceptions exceptions.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	settingsSystem := settings.New(
		db,
		runtime.Logger,
		runtime.Pagination,
	)

	sessionsSystem := sessions.New(
		runtime.Classifier,
		sessions.NewStore(db, runtime.Logger),
		settingsSystem,
		runtime.Logger,
	)

	runsSystem := runs.New(
		&cfg.Runs,
		runtime.Classifier,
		runs.NewStore(db, runtime.Logger, runtime.Pagination),
		runtime.Storage,
		settingsSystem,
		runtime.Logger,
		runtime.Pagination,
	)

	exceptionsSystem := exceptions.New(
		db,
		runtime.Logger,
		cfg.API.Triage,
		runtime.Pagination,
	)

	return &Domain{
		Settings:   settingsSystem,
		Sessions:   sessionsSystem,
		Runs:       runsSystem,
		Exceptions: exceptionsSystem,
	}
}

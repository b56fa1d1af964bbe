package server

import (
	"github.com/hashicorp/go-hclog"

	"github.com/rbxmod/banlist/internal/auth"
	"github.com/rbxmod/banlist/internal/config"
	"github.com/rbxmod/banlist/pkg/banlist"
	"github.com/rbxmod/banlist/pkg/events"
)

// Server contains the server configuration.
type Server struct {
	// Syncer reads and writes the ban list document.
	Syncer *banlist.Syncer

	// Gate applies the rate limit and secret check to every API route.
	Gate *auth.Gate

	// Events receives a message for every ban list change.
	Events events.Publisher

	// Config is the config for the server.
	Config *config.Config

	// Logger is the logger for the server.
	Logger hclog.Logger
}

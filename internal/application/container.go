package application

import (
	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/application/services"
	"github.com/verida/notification-server/internal/domain/push"
	"github.com/verida/notification-server/internal/domain/registry"
	"github.com/verida/notification-server/pkg/logger"
)

// Services holds all application services.
type Services struct {
	Registry *services.RegistryService
	Relay    *services.RelayService
}

// Dependencies holds the infrastructure the services are built on.
type Dependencies struct {
	Store    registry.Store
	Sender   push.Sender
	Recorder push.Recorder // optional
}

// NewServices creates all application services.
func NewServices(deps *Dependencies, cfg *config.Config, log logger.Logger) *Services {
	registryService := services.NewRegistryService(deps.Store, cfg, log)

	relayService := services.NewRelayService(
		registryService,
		deps.Sender,
		deps.Recorder,
		cfg,
		log,
	)

	return &Services{
		Registry: registryService,
		Relay:    relayService,
	}
}

package server

import (
	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
)

func Start(addr string, cfg config.Config, webhookH *handler.WebhookHandler, opsH *handler.OpsHandler) error {
	e := echo.New()
	e.HideBanner = true

	RegisterRoutes(e, cfg, webhookH, opsH)
	return e.Start(addr)
}

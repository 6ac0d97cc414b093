package server

import (
	"net/http"

	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, cfg config.Config, webhookH *handler.WebhookHandler, opsH *handler.OpsHandler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.AckResponse{OK: true})
	})

	webhookH.RegisterRoutes(e)
	opsH.RegisterRoutes(e, cfg)
}

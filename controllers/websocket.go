package controllers

import (
	"context"

	"prepxiq_go/middleware"
	"prepxiq_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// Upgrade rejects plain HTTP requests on the websocket path.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if fiberws.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebSocketHandler authenticates ws://<host>/ws?token=JWT and attaches the
// connection to the staff change feed.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		token := c.Query("token")
		if token == "" {
			logrus.Warn("WebSocket connection rejected: missing token")
			_ = c.WriteMessage(fiberws.CloseMessage, websocket.CloseMessage("Missing token"))
			_ = c.Close()
			return
		}

		claims, err := middleware.ParseToken(token)
		if err == nil && middleware.IsTokenRevoked(context.Background(), claims) {
			err = fiber.ErrUnauthorized
		}
		if err != nil {
			logrus.WithError(err).Warn("WebSocket connection rejected: invalid token")
			_ = c.WriteMessage(fiberws.CloseMessage, websocket.CloseMessage("Invalid token"))
			_ = c.Close()
			return
		}
		user, err := middleware.LoadActiveUser(context.Background(), claims)
		if err != nil {
			logrus.WithError(err).Warn("WebSocket connection rejected: inactive user")
			_ = c.WriteMessage(fiberws.CloseMessage, websocket.CloseMessage("Invalid token"))
			_ = c.Close()
			return
		}

		logrus.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c, user.ID, user.Role)
	})
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}

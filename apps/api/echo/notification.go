package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/services/notifybus"
)

var streamHeartbeat = 15 * time.Second

type notificationApi struct {
	svc    notification.Service
	hub    *notifybus.Hub
	logger core.Logger
}

func registerNotificationAPI(g *echo.Group, auth echo.MiddlewareFunc, svc notification.Service, hub *notifybus.Hub, logger core.Logger) {
	api := notificationApi{svc: svc, hub: hub, logger: logger}

	ng := g.Group("/notifications", auth)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.GET("/stream", api.stream)
	ng.POST("/read-all", api.readAll)
	ng.POST("/:id/read", api.read)
	ng.DELETE("/:id", api.destroy)
}

func (api *notificationApi) query(ctx echo.Context) error {
	var filter notification.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	page, err := api.svc.List(ctx.Request().Context(), ctxUser(ctx).ID, filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	n, err := api.svc.UnreadCount(ctx.Request().Context(), ctxUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"unread": n})
}

func (api *notificationApi) read(ctx echo.Context) error {
	n, err := api.svc.MarkRead(ctx.Request().Context(), ctxUser(ctx).ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) readAll(ctx echo.Context) error {
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), ctxUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"updated": n})
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctxUser(ctx).ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// stream pushes the caller's notifications as server-sent events until the client goes away.
func (api *notificationApi) stream(ctx echo.Context) error {
	w := ctx.Response()
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	client := api.hub.Subscribe(ctxUser(ctx).ID)
	defer api.hub.Unsubscribe(client)

	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	reqCtx := ctx.Request().Context()
	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-client.Done():
			return nil
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n := <-client.Outbound:
			data, err := json.Marshal(n)
			if err != nil {
				api.logger.Warn("marshalling notification", "error", err, "notification_id", n.ID)
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data)
			flusher.Flush()
		}
	}
}

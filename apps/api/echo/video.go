package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
)

type videoApi struct {
	svc video.Service
}

func registerVideoAPI(g *echo.Group, auth echo.MiddlewareFunc, svc video.Service) {
	api := videoApi{svc: svc}

	vg := g.Group("/videos", auth)
	vg.GET("", api.query)
	vg.GET("/:id", api.retrieve)

	sg := vg.Group("", staffMiddleware())
	sg.POST("/uploads", api.initUpload)
	sg.GET("/uploads/:id", api.uploadStatus)
	sg.PUT("/uploads/:id/chunks/:index", api.putChunk)
	sg.POST("/uploads/:id/complete", api.complete)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
	sg.POST("/:id/retranscode", api.retranscode)
}

func (api *videoApi) initUpload(ctx echo.Context) error {
	var data video.NewUpload
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	u, err := api.svc.InitUpload(ctx.Request().Context(), ctxUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "starting upload")
	}
	return ctx.JSON(http.StatusCreated, u)
}

func (api *videoApi) uploadStatus(ctx echo.Context) error {
	u, err := api.svc.UploadStatus(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting upload")
	}
	return ctx.JSON(http.StatusOK, u)
}

// putChunk stores the raw request body as chunk `:index`.
func (api *videoApi) putChunk(ctx echo.Context) error {
	var index int
	if err := echo.PathParamsBinder(ctx).MustInt("index", &index).BindError(); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "index", Error: video.ErrChunkIndex.Error()})
	}
	u, err := api.svc.PutChunk(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"), index, ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "storing chunk")
	}
	return ctx.JSON(http.StatusOK, u)
}

func (api *videoApi) complete(ctx echo.Context) error {
	v, err := api.svc.Complete(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing upload")
	}
	return ctx.JSON(http.StatusAccepted, v)
}

func (api *videoApi) query(ctx echo.Context) error {
	var filter video.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	videos, err := api.svc.Query(ctx.Request().Context(), ctxUser(ctx), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying videos")
	}
	return ctx.JSON(http.StatusOK, nonNil(videos))
}

func (api *videoApi) retrieve(ctx echo.Context) error {
	v, err := api.svc.Get(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting video")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *videoApi) update(ctx echo.Context) error {
	var data video.UpdateVideo
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	v, err := api.svc.Update(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating video")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *videoApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting video")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *videoApi) retranscode(ctx echo.Context) error {
	v, err := api.svc.Retranscode(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retranscoding video")
	}
	return ctx.JSON(http.StatusAccepted, v)
}

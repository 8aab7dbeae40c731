package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core/progress"
)

type progressApi struct {
	svc progress.Service
}

func registerProgressAPI(g *echo.Group, auth echo.MiddlewareFunc, svc progress.Service) {
	api := progressApi{svc: svc}

	pg := g.Group("/progress", auth)
	pg.GET("", api.query)
	pg.GET("/summary", api.summary)
	pg.PUT("/problems/:problem_id", api.setStatus)
	pg.DELETE("/problems/:problem_id", api.reset)
}

// studentParam defaults to the caller.
func studentParam(ctx echo.Context) string {
	if id := ctx.QueryParam("student"); id != "" {
		return id
	}
	return ctxUser(ctx).ID
}

func (api *progressApi) query(ctx echo.Context) error {
	var filter progress.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	pps, err := api.svc.List(ctx.Request().Context(), ctxUser(ctx), studentParam(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "listing progress")
	}
	return ctx.JSON(http.StatusOK, nonNil(pps))
}

func (api *progressApi) summary(ctx echo.Context) error {
	sums, err := api.svc.Summary(ctx.Request().Context(), ctxUser(ctx), studentParam(ctx), ctx.QueryParam("knowledge_point"))
	if err != nil {
		return errors.Wrap(err, "summarizing progress")
	}
	return ctx.JSON(http.StatusOK, nonNil(sums))
}

func (api *progressApi) setStatus(ctx echo.Context) error {
	var data progress.SetStatus
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	pp, err := api.svc.SetStatus(ctx.Request().Context(), ctxUser(ctx), ctx.Param("problem_id"), data)
	if err != nil {
		return errors.Wrap(err, "setting progress")
	}
	return ctx.JSON(http.StatusOK, pp)
}

func (api *progressApi) reset(ctx echo.Context) error {
	if err := api.svc.Reset(ctx.Request().Context(), ctxUser(ctx), ctx.Param("problem_id")); err != nil {
		return errors.Wrap(err, "resetting progress")
	}
	return ctx.NoContent(http.StatusNoContent)
}

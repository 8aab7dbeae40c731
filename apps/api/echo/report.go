package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core/report"
)

type reportApi struct {
	svc report.Service
}

func registerReportAPI(g *echo.Group, auth echo.MiddlewareFunc, svc report.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports", auth)
	rg.GET("", api.query)
	rg.POST("", api.create, staffMiddleware())
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update, staffMiddleware())
	rg.DELETE("/:id", api.destroy, staffMiddleware())
}

func (api *reportApi) query(ctx echo.Context) error {
	var filter report.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	reports, err := api.svc.Query(ctx.Request().Context(), ctxUser(ctx), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying reports")
	}
	return ctx.JSON(http.StatusOK, nonNil(reports))
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	r, err := api.svc.Get(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting report")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reportApi) create(ctx echo.Context) error {
	var data report.NewReport
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	r, err := api.svc.Create(ctx.Request().Context(), ctxUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating report")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *reportApi) update(ctx echo.Context) error {
	var data report.UpdateReport
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	r, err := api.svc.Update(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating report")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reportApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting report")
	}
	return ctx.NoContent(http.StatusNoContent)
}

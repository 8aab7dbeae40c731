package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core/integration"
)

type integrationApi struct {
	svc integration.Service
}

func registerIntegrationAPI(g *echo.Group, auth echo.MiddlewareFunc, svc integration.Service) {
	api := integrationApi{svc: svc}

	ig := g.Group("/integrations", auth)
	ig.POST("/luogu/import", api.importLuoguProblem, staffMiddleware())
	ig.POST("/luogu/sync/:student_id", api.syncLuogu)
	ig.POST("/gesp/sync/:student_id", api.syncGesp)
	ig.GET("/gesp/:student_id", api.gespRecords)
}

func (api *integrationApi) importLuoguProblem(ctx echo.Context) error {
	var data integration.ImportProblem
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, created, err := api.svc.ImportLuoguProblem(ctx.Request().Context(), ctxUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "importing luogu problem")
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, p)
}

func (api *integrationApi) syncLuogu(ctx echo.Context) error {
	res, err := api.svc.SyncLuogu(ctx.Request().Context(), ctxUser(ctx), ctx.Param("student_id"))
	if err != nil {
		return errors.Wrap(err, "syncing luogu progress")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *integrationApi) syncGesp(ctx echo.Context) error {
	var data integration.SyncGesp
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	records, err := api.svc.SyncGesp(ctx.Request().Context(), ctxUser(ctx), ctx.Param("student_id"), data)
	if err != nil {
		return errors.Wrap(err, "syncing gesp records")
	}
	return ctx.JSON(http.StatusOK, nonNil(records))
}

func (api *integrationApi) gespRecords(ctx echo.Context) error {
	records, err := api.svc.GespRecords(ctx.Request().Context(), ctxUser(ctx), ctx.Param("student_id"))
	if err != nil {
		return errors.Wrap(err, "listing gesp records")
	}
	return ctx.JSON(http.StatusOK, nonNil(records))
}

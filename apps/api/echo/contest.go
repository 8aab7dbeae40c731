package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core/contest"
)

type contestApi struct {
	svc contest.Service
}

func registerContestAPI(g *echo.Group, auth echo.MiddlewareFunc, svc contest.Service) {
	api := contestApi{svc: svc}

	cg := g.Group("/contests", auth)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.POST("", api.create, staffMiddleware())
	cg.PUT("/:id", api.update, staffMiddleware())
	cg.DELETE("/:id", api.destroy, staffMiddleware())
}

func (api *contestApi) query(ctx echo.Context) error {
	var filter contest.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	contests, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying contests")
	}
	return ctx.JSON(http.StatusOK, nonNil(contests))
}

func (api *contestApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting contest")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *contestApi) create(ctx echo.Context) error {
	var data contest.NewContest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.Create(ctx.Request().Context(), ctxUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating contest")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *contestApi) update(ctx echo.Context) error {
	var data contest.UpdateContest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating contest")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *contestApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting contest")
	}
	return ctx.NoContent(http.StatusNoContent)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core/family"
	"github.com/oiclass/oiclass/core/user"
)

type familyApi struct {
	svc family.Service
}

func registerFamilyAPI(g *echo.Group, auth echo.MiddlewareFunc, svc family.Service) {
	api := familyApi{svc: svc}

	fg := g.Group("/bindings", auth)
	fg.POST("", api.request)
	fg.GET("", api.query)
	fg.GET("/children", api.children)
	fg.POST("/:id/accept", api.accept)
	fg.POST("/:id/reject", api.reject)
	fg.POST("/:id/cancel", api.cancel)
	fg.POST("/:id/unbind", api.unbind)
}

func (api *familyApi) request(ctx echo.Context) error {
	var data family.NewRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	req, err := api.svc.Request(ctx.Request().Context(), ctxUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "requesting binding")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *familyApi) query(ctx echo.Context) error {
	reqs, err := api.svc.ListMine(ctx.Request().Context(), ctxUser(ctx), ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "listing bindings")
	}
	return ctx.JSON(http.StatusOK, nonNil(reqs))
}

func (api *familyApi) children(ctx echo.Context) error {
	children, err := api.svc.Children(ctx.Request().Context(), ctxUser(ctx))
	if err != nil {
		return errors.Wrap(err, "listing children")
	}
	if children == nil {
		children = []user.User{}
	}
	return ctx.JSON(http.StatusOK, children)
}

// transition runs one of the binding state changes on the `:id` request.
func (api *familyApi) transition(ctx echo.Context, action string, fn func(echo.Context) (family.BindingRequest, error)) error {
	req, err := fn(ctx)
	if err != nil {
		return errors.Wrap(err, action)
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *familyApi) accept(ctx echo.Context) error {
	return api.transition(ctx, "accepting binding", func(c echo.Context) (family.BindingRequest, error) {
		return api.svc.Accept(c.Request().Context(), ctxUser(c), c.Param("id"))
	})
}

func (api *familyApi) reject(ctx echo.Context) error {
	return api.transition(ctx, "rejecting binding", func(c echo.Context) (family.BindingRequest, error) {
		return api.svc.Reject(c.Request().Context(), ctxUser(c), c.Param("id"))
	})
}

func (api *familyApi) cancel(ctx echo.Context) error {
	return api.transition(ctx, "cancelling binding", func(c echo.Context) (family.BindingRequest, error) {
		return api.svc.Cancel(c.Request().Context(), ctxUser(c), c.Param("id"))
	})
}

func (api *familyApi) unbind(ctx echo.Context) error {
	return api.transition(ctx, "unbinding", func(c echo.Context) (family.BindingRequest, error) {
		return api.svc.Unbind(c.Request().Context(), ctxUser(c), c.Param("id"))
	})
}

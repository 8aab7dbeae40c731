package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core/blog"
)

type blogApi struct {
	svc blog.Service
}

func registerBlogAPI(g *echo.Group, auth, optAuth echo.MiddlewareFunc, svc blog.Service) {
	api := blogApi{svc: svc}

	bg := g.Group("/posts")

	// published posts are public
	bg.GET("", api.query, optAuth)
	bg.GET("/moderation", api.moderation, auth, staffMiddleware())
	bg.GET("/:id", api.retrieve, optAuth)

	ag := bg.Group("", auth)
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/submit", api.submit)
	ag.POST("/:id/approve", api.approve, staffMiddleware())
	ag.POST("/:id/reject", api.reject, staffMiddleware())
	ag.POST("/:id/unpublish", api.unpublish, adminMiddleware())
}

func (api *blogApi) query(ctx echo.Context) error {
	var filter blog.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	posts, err := api.svc.Query(ctx.Request().Context(), ctxUser(ctx), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying posts")
	}
	return ctx.JSON(http.StatusOK, nonNil(posts))
}

func (api *blogApi) moderation(ctx echo.Context) error {
	posts, err := api.svc.Moderation(ctx.Request().Context(), ctxUser(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing moderation queue")
	}
	return ctx.JSON(http.StatusOK, nonNil(posts))
}

func (api *blogApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) create(ctx echo.Context) error {
	var data blog.NewPost
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, err := api.svc.Create(ctx.Request().Context(), ctxUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *blogApi) update(ctx echo.Context) error {
	var data blog.UpdatePost
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, err := api.svc.Update(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *blogApi) submit(ctx echo.Context) error {
	p, err := api.svc.Submit(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "submitting post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) approve(ctx echo.Context) error {
	p, err := api.svc.Approve(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) reject(ctx echo.Context) error {
	var data blog.RejectPost
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, err := api.svc.Reject(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) unpublish(ctx echo.Context) error {
	p, err := api.svc.Unpublish(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unpublishing post")
	}
	return ctx.JSON(http.StatusOK, p)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core/knowledge"
)

type knowledgeApi struct {
	svc knowledge.Service
}

func registerKnowledgeAPI(g *echo.Group, auth echo.MiddlewareFunc, svc knowledge.Service) {
	api := knowledgeApi{svc: svc}

	kg := g.Group("/knowledge-points", auth)
	kg.GET("", api.query)
	kg.GET("/groups", api.groups)
	kg.POST("", api.create, staffMiddleware())
	kg.GET("/:id", api.retrieve)
	kg.PUT("/:id", api.update, staffMiddleware())
	kg.DELETE("/:id", api.destroy, staffMiddleware())
	kg.POST("/:id/problems", api.addProblem, staffMiddleware())
	kg.POST("/:id/videos", api.attachVideo, staffMiddleware())
	kg.DELETE("/:id/videos/:video_id", api.detachVideo, staffMiddleware())

	pg := g.Group("/problems", auth)
	pg.GET("/lookup", api.lookupProblem)
	pg.GET("/:id", api.retrieveProblem)
	pg.PUT("/:id", api.updateProblem, staffMiddleware())
	pg.DELETE("/:id", api.destroyProblem, staffMiddleware())
}

func (api *knowledgeApi) query(ctx echo.Context) error {
	var filter knowledge.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	kps, err := api.svc.QueryPoints(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying knowledge points")
	}
	return ctx.JSON(http.StatusOK, nonNil(kps))
}

func (api *knowledgeApi) groups(ctx echo.Context) error {
	groups, err := api.svc.Groups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing groups")
	}
	return ctx.JSON(http.StatusOK, nonNil(groups))
}

func (api *knowledgeApi) create(ctx echo.Context) error {
	var data knowledge.NewPoint
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	kp, err := api.svc.CreatePoint(ctx.Request().Context(), ctxUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating knowledge point")
	}
	return ctx.JSON(http.StatusCreated, kp)
}

func (api *knowledgeApi) retrieve(ctx echo.Context) error {
	kp, err := api.svc.GetPoint(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting knowledge point")
	}
	return ctx.JSON(http.StatusOK, kp)
}

func (api *knowledgeApi) update(ctx echo.Context) error {
	var data knowledge.UpdatePoint
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	kp, err := api.svc.UpdatePoint(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating knowledge point")
	}
	return ctx.JSON(http.StatusOK, kp)
}

func (api *knowledgeApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeletePoint(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting knowledge point")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *knowledgeApi) addProblem(ctx echo.Context) error {
	var data knowledge.NewProblem
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, err := api.svc.AddProblem(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding problem")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *knowledgeApi) attachVideo(ctx echo.Context) error {
	var data knowledge.AttachVideo
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := api.svc.AttachVideo(ctx.Request().Context(), ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "attaching video")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *knowledgeApi) detachVideo(ctx echo.Context) error {
	if err := api.svc.DetachVideo(ctx.Request().Context(), ctx.Param("id"), ctx.Param("video_id")); err != nil {
		return errors.Wrap(err, "detaching video")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *knowledgeApi) lookupProblem(ctx echo.Context) error {
	p, err := api.svc.FindProblemBySource(ctx.Request().Context(), ctx.QueryParam("source"), ctx.QueryParam("source_id"))
	if err != nil {
		return errors.Wrap(err, "finding problem by source")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *knowledgeApi) retrieveProblem(ctx echo.Context) error {
	p, err := api.svc.GetProblem(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting problem")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *knowledgeApi) updateProblem(ctx echo.Context) error {
	var data knowledge.UpdateProblem
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, err := api.svc.UpdateProblem(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating problem")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *knowledgeApi) destroyProblem(ctx echo.Context) error {
	if err := api.svc.DeleteProblem(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting problem")
	}
	return ctx.NoContent(http.StatusNoContent)
}

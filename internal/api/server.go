package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/blockmerge/internal/merge"
	"github.com/samcharles93/blockmerge/internal/node"
	"github.com/samcharles93/blockmerge/internal/webui"
)

type Server struct {
	registry *node.Registry
	service  *MergeService
	store    *MergeStore
	clock    func() time.Time
}

func NewServer(registry *node.Registry, service *MergeService, store *MergeStore) *Server {
	if registry == nil {
		registry = node.DefaultRegistry()
	}
	if store == nil {
		store = NewMergeStore()
	}
	return &Server{
		registry: registry,
		service:  service,
		store:    store,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/nodes", s.handleNodes)
	e.GET("/v1/regions", s.handleRegions)
	e.POST("/v1/plan", s.handlePlan)
	e.POST("/v1/merges", s.handleCreateMerge)
	e.GET("/v1/merges", s.handleListMerges)
	e.GET("/v1/merges/:id", s.handleGetMerge)

	assets := http.StripPrefix(strings.TrimSuffix(node.WebDirectory, "/"), webui.Handler())
	e.GET(node.WebDirectory+"*", func(c *echo.Context) error {
		assets.ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/", func(c *echo.Context) error {
		return c.Redirect(http.StatusFound, node.WebDirectory)
	})
}

func (s *Server) merger() *merge.Merger {
	if s.service != nil {
		return s.service.Merger()
	}
	return merge.NewMerger(merge.DefaultOptions(), nil)
}

func (s *Server) handleNodes(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.registry)
}

func (s *Server) handleRegions(c *echo.Context) error {
	var params MergeParams
	var err error
	if params.TimeEmbed, err = queryInt(c, "time_embed"); err != nil {
		return writeBadRequest(c, err.Error())
	}
	if params.LabelEmb, err = queryInt(c, "label_emb"); err != nil {
		return writeBadRequest(c, err.Error())
	}
	if params.Out, err = queryInt(c, "out"); err != nil {
		return writeBadRequest(c, err.Error())
	}
	if raw := c.QueryParam("weights_json"); raw != "" {
		params.WeightsJSON = &raw
	}

	p, fellBack := params.resolve()
	table, err := s.merger().Table(p)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, RegionsResponse{Regions: table.Regions(), FellBack: fellBack})
}

func (s *Server) handlePlan(c *echo.Context) error {
	req, err := decodeJSON[PlanRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	p, fellBack := req.resolve()
	m := s.merger()
	table, err := m.Table(p)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ns := m.Options().Namespace
	return c.JSON(http.StatusOK, PlanResponse{
		Namespace:   ns,
		Assignments: merge.Plan(req.Keys, ns, table),
		FellBack:    fellBack,
	})
}

func (s *Server) handleCreateMerge(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "merge service not configured")
	}
	req, err := decodeJSON[MergeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	rec := s.store.Create(req, s.clock())
	res, runErr := s.service.Run(c.Request().Context(), req)
	if runErr != nil {
		rec, _ = s.store.Finish(rec.ID, nil, runErr, s.clock())
		if isInvalidInput(runErr) {
			return c.JSON(http.StatusBadRequest, rec)
		}
		return c.JSON(http.StatusInternalServerError, rec)
	}
	rec, _ = s.store.Finish(rec.ID, &res, nil, s.clock())
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListMerges(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   s.store.List(),
	})
}

func (s *Server) handleGetMerge(c *echo.Context) error {
	rec, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "merge not found")
	}
	return c.JSON(http.StatusOK, rec)
}

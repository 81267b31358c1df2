package worker

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/scenestack/pipeline/pkg/domain"
)

// createProjectHandler handles POST /api/v1/projects. It delegates to the
// Orchestrator so the new project is also registered for event consumption
// and its PROJECT_CREATED root event is published (spec §3 "Project
// created by external API call").
func (s *Server) createProjectHandler(c *echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := s.orch.CreateProject(c.Request().Context(), req.Spec, domain.Budget{
		Total: domain.NewMoney(req.BudgetTotal, req.Currency),
	})
	if err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusCreated, ProjectResponse{Project: p, PredictedFinal: p.Budget.PredictedFinal(p.ProgressRatio())})
}

// getProjectHandler handles GET /api/v1/projects/:project_id — state.get_*
// (spec §6). Serves through the cache-aside Store so repeated reads during
// a busy project don't hammer Postgres.
func (s *Server) getProjectHandler(c *echo.Context) error {
	p, err := s.store.GetProject(c.Request().Context(), c.Param("project_id"))
	if err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, ProjectResponse{Project: p, PredictedFinal: p.Budget.PredictedFinal(p.ProgressRatio())})
}

// getShotHandler handles GET /api/v1/projects/:project_id/shots/:shot_id.
func (s *Server) getShotHandler(c *echo.Context) error {
	shot, err := s.store.GetShot(c.Request().Context(), c.Param("project_id"), c.Param("shot_id"))
	if err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, shot)
}

// getDNABankHandler handles GET /api/v1/projects/:project_id/dna.
func (s *Server) getDNABankHandler(c *echo.Context) error {
	bank, err := s.store.GetDNABank(c.Request().Context(), c.Param("project_id"))
	if err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, bank)
}

// updateShotHandler handles PATCH /api/v1/projects/:project_id/shots/:shot_id
// — state.update_shot (spec §4.2, §6).
func (s *Server) updateShotHandler(c *echo.Context) error {
	var req UpdateShotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.store.UpdateShot(c.Request().Context(), c.Param("project_id"), c.Param("shot_id"), req.Shot, req.Actor, req.CausationID); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, AckResponse{OK: true})
}

// updateDNAHandler handles PATCH
// /api/v1/projects/:project_id/dna/:entity_id — state.update_dna_bank.
func (s *Server) updateDNAHandler(c *echo.Context) error {
	var req UpdateDNARequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.store.UpdateDNABank(c.Request().Context(), c.Param("project_id"), c.Param("entity_id"), req.Entry, req.Actor, req.CausationID); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, AckResponse{OK: true})
}

// updateBudgetHandler handles PATCH /api/v1/projects/:project_id/budget —
// state.update_budget / add_cost (spec §4.2).
func (s *Server) updateBudgetHandler(c *echo.Context) error {
	var req UpdateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	amount := domain.NewMoney(req.Amount, req.Currency)
	if err := s.store.AddCost(c.Request().Context(), c.Param("project_id"), amount, req.Category, req.Actor, req.CausationID); err != nil {
		return mapCoreError(err)
	}
	if s.budget != nil {
		if err := s.budget.EvaluateThresholds(c.Request().Context(), c.Param("project_id"), req.CausationID); err != nil {
			return mapCoreError(err)
		}
	}
	return c.JSON(http.StatusOK, AckResponse{OK: true})
}

// registerArtifactHandler handles POST
// /api/v1/projects/:project_id/artifacts — register_artifact (spec §4.2,
// §6 "Blob store: artifact files by URI; the core does not manage blob
// contents, only references").
func (s *Server) registerArtifactHandler(c *echo.Context) error {
	var req RegisterArtifactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	artifact := domain.ArtifactEntry{
		URI:          req.URI,
		Seed:         req.Seed,
		Model:        req.Model,
		ModelVersion: req.ModelVersion,
		Prompt:       req.Prompt,
		Cost:         domain.NewMoney(req.Cost, req.Currency),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.RegisterArtifact(c.Request().Context(), c.Param("project_id"), artifact); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusCreated, AckResponse{OK: true})
}

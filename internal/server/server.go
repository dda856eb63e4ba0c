// Package server exposes the deliberation engine and decision graph
// over a minimal JSON HTTP surface, the demonstrable stand-in for the
// MCP tool dispatcher described in §6.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dev.aicounsel.server/internal/aierrors"
	"dev.aicounsel.server/internal/deliberation"
	"dev.aicounsel.server/internal/domain"
	"dev.aicounsel.server/internal/graph/store"
)

// Server wires the HTTP surface to the engine and the store.
type Server struct {
	engine *deliberation.Engine
	store  store.Store
	logger *logrus.Logger
	router *gin.Engine
}

// New builds the gin router with the two routes wired in.
func New(engine *deliberation.Engine, s store.Store, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{engine: engine, store: s, logger: logger, router: router}
	router.POST("/deliberate", srv.handleDeliberate)
	router.GET("/decisions", srv.handleListDecisions)
	return srv
}

// Router exposes the underlying http.Handler for use with http.Server
// or httptest.
func (s *Server) Router() http.Handler { return s.router }

type deliberateParticipant struct {
	AdapterName string `json:"adapter_name" binding:"required"`
	ModelID     string `json:"model_id"`
}

type deliberateRequestBody struct {
	Question         string                   `json:"question" binding:"required"`
	Participants     []deliberateParticipant  `json:"participants" binding:"required"`
	Rounds           int                      `json:"rounds"`
	Mode             string                   `json:"mode"`
	Context          string                   `json:"context"`
	WorkingDirectory string                   `json:"working_directory" binding:"required"`
}

func (s *Server) handleDeliberate(c *gin.Context) {
	var body deliberateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participants := make([]domain.Participant, len(body.Participants))
	for i, p := range body.Participants {
		participants[i] = domain.Participant{AdapterName: p.AdapterName, ModelID: p.ModelID}
	}

	req := deliberation.Request{
		Question:         body.Question,
		Participants:     participants,
		Rounds:           body.Rounds,
		Mode:             body.Mode,
		Context:          body.Context,
		WorkingDirectory: body.WorkingDirectory,
	}

	result, err := s.engine.Execute(c.Request.Context(), req)
	if err != nil {
		if ve, ok := err.(*aierrors.ValidationError); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
			return
		}
		s.logger.WithError(err).Error("deliberation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type decisionSummary struct {
	ID                string `json:"id"`
	Question          string `json:"question"`
	Consensus         string `json:"consensus"`
	ConvergenceStatus string `json:"convergence_status"`
}

type decisionDetailed struct {
	decisionSummary
	Timestamp string           `json:"timestamp"`
	Stances   []store.Stance   `json:"stances"`
}

func (s *Server) handleListDecisions(c *gin.Context) {
	limit := 10
	if q := c.Query("limit"); q != "" {
		if parsed, err := parsePositiveInt(q); err == nil {
			limit = parsed
		}
	}
	format := c.DefaultQuery("format", "summary")

	decisions, err := s.store.ListDecisions(limit, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch format {
	case "detailed":
		out := make([]decisionDetailed, 0, len(decisions))
		for _, d := range decisions {
			stances, _ := s.store.GetStances(d.ID)
			out = append(out, decisionDetailed{
				decisionSummary: decisionSummary{ID: d.ID, Question: d.Question, Consensus: d.Consensus, ConvergenceStatus: d.ConvergenceStatus},
				Timestamp:       d.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				Stances:         stances,
			})
		}
		c.JSON(http.StatusOK, gin.H{"decisions": out})
	case "json":
		c.JSON(http.StatusOK, gin.H{"decisions": decisions})
	default:
		out := make([]decisionSummary, 0, len(decisions))
		for _, d := range decisions {
			out = append(out, decisionSummary{ID: d.ID, Question: d.Question, Consensus: d.Consensus, ConvergenceStatus: d.ConvergenceStatus})
		}
		c.JSON(http.StatusOK, gin.H{"decisions": out})
	}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, aierrors.NewValidationError("limit", "must be a positive integer")
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, aierrors.NewValidationError("limit", "must be a positive integer")
	}
	return n, nil
}

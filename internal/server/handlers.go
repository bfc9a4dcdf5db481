package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// IngestRequest is the JSON body for POST /api/v1/documents.
type IngestRequest struct {
	// DocumentID is optional; a UUID is assigned when empty.
	DocumentID string            `json:"document_id,omitempty"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IngestResponse is the JSON response for POST /api/v1/documents.
type IngestResponse struct {
	DocumentID string   `json:"document_id"`
	Inserted   int      `json:"inserted"`
	FailedIDs  []string `json:"failed_ids,omitempty"`
}

// DeleteResponse is the JSON response for DELETE /api/v1/documents/:id.
type DeleteResponse struct {
	DocumentID string `json:"document_id"`
	Deleted    int    `json:"deleted"`
}

// QueryRequest is the JSON body for POST /api/v1/query. TopK is a pointer so
// an omitted field (use the configured default) is distinguishable from an
// explicit zero (rejected as invalid input).
type QueryRequest struct {
	Query    string            `json:"query"`
	TopK     *int              `json:"top_k,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
	Generate bool              `json:"generate,omitempty"`
}

// QueryResponse is the JSON response for POST /api/v1/query.
type QueryResponse struct {
	Results []vectorstore.SearchResult `json:"results"`
	Answer  string                     `json:"answer,omitempty"`
	Backend vectorstore.Backend        `json:"backend"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string                 `json:"status"`
	State  vectorstore.State      `json:"state"`
	Store  vectorstore.Descriptor `json:"store"`
	Time   time.Time              `json:"time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "text is required"})
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	result, err := s.pipeline.IngestText(c.Request().Context(), req.DocumentID, req.Text, req.Metadata)
	if err != nil {
		return s.serviceError(c, "ingest failed", err)
	}
	return c.JSON(http.StatusCreated, IngestResponse{
		DocumentID: req.DocumentID,
		Inserted:   result.Inserted,
		FailedIDs:  result.FailedIDs,
	})
}

func (s *Server) handleDelete(c echo.Context) error {
	documentID := c.Param("id")
	deleted, err := s.pipeline.DeleteDocument(c.Request().Context(), documentID)
	if err != nil {
		return s.serviceError(c, "delete failed", err)
	}
	return c.JSON(http.StatusOK, DeleteResponse{
		DocumentID: documentID,
		Deleted:    deleted,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	topK := s.retriever.DefaultTopK()
	if req.TopK != nil {
		topK = *req.TopK
	}

	results, err := s.retriever.Retrieve(c.Request().Context(), req.Query, topK, req.Filters)
	if err != nil {
		return s.serviceError(c, "query failed", err)
	}
	if results == nil {
		results = []vectorstore.SearchResult{}
	}

	resp := QueryResponse{
		Results: results,
		Backend: s.selector.Backend(),
	}
	if req.Generate {
		if s.generator == nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "generation is disabled"})
		}
		answer, err := s.generator.Answer(c.Request().Context(), req.Query, results)
		if err != nil {
			return s.serviceError(c, "generation failed", err)
		}
		resp.Answer = answer
	}
	return c.JSON(http.StatusOK, resp)
}

// handleRetryRemote re-probes the remote index and restores it on success.
func (s *Server) handleRetryRemote(c echo.Context) error {
	if err := s.selector.RetryRemote(c.Request().Context()); err != nil {
		return s.serviceError(c, "remote retry failed", err)
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		State:  s.selector.State(),
		Store:  s.selector.Status(),
		Time:   time.Now(),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	desc := s.selector.Status()
	status := "ok"
	if !desc.Healthy {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status: status,
		State:  s.selector.State(),
		Store:  desc,
		Time:   time.Now(),
	})
}

// serviceError maps domain errors to HTTP status codes.
func (s *Server) serviceError(c echo.Context, msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vectorstore.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrConnectionFailed):
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

package classify_http

import (
	"errors"
	"net/http"

	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/usecase"

	"github.com/labstack/echo/v4"
)

// TaxonomyHashProvider reports the fingerprint of the taxonomy snapshot
// currently serving retrieval. Surfaced in responses so callers can detect
// when results were produced against a stale hierarchy.
type TaxonomyHashProvider interface {
	TaxonomyHash() string
}

type Handler struct {
	classifyUsecase usecase.ClassifyBatchUsecase
	hashProvider    TaxonomyHashProvider
}

func NewHandler(classifyUsecase usecase.ClassifyBatchUsecase, hashProvider TaxonomyHashProvider) *Handler {
	return &Handler{
		classifyUsecase: classifyUsecase,
		hashProvider:    hashProvider,
	}
}

type classifyBatchRequest struct {
	Items []domain.TitleItem `json:"items"`
}

type classifyBatchResponse struct {
	*usecase.ClassifyBatchOutput
	TaxonomyHash string `json:"taxonomy_hash,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ClassifyBatch classifies a batch of article titles.
// (POST /v1/classify/batch)
func (h *Handler) ClassifyBatch(ctx echo.Context) error {
	var req classifyBatchRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "request body must be JSON with an items array"})
	}

	output, err := h.classifyUsecase.Execute(ctx.Request().Context(), usecase.ClassifyBatchInput{Items: req.Items})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidBatch):
			return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: err.Error()})
		case errors.Is(err, domain.ErrRetrievalUnavailable):
			return ctx.JSON(http.StatusBadGateway, errorResponse{Error: "retrieval_unavailable", Message: err.Error()})
		case errors.Is(err, domain.ErrAdjudicationFailed):
			return ctx.JSON(http.StatusBadGateway, errorResponse{Error: "adjudication_failed", Message: err.Error()})
		default:
			return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: err.Error()})
		}
	}

	resp := classifyBatchResponse{ClassifyBatchOutput: output}
	if h.hashProvider != nil {
		resp.TaxonomyHash = h.hashProvider.TaxonomyHash()
	}
	return ctx.JSON(http.StatusOK, resp)
}

package classify_http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"classify-orchestrator/internal/adapter/classify_http"
	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifyUsecase struct {
	output *usecase.ClassifyBatchOutput
	err    error
}

func (s *stubClassifyUsecase) Execute(ctx context.Context, input usecase.ClassifyBatchInput) (*usecase.ClassifyBatchOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

type fixedHash string

func (f fixedHash) TaxonomyHash() string { return string(f) }

func perform(t *testing.T, handler *classify_http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/classify/batch", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, handler.ClassifyBatch(c))
	return rec
}

func TestHandler_ClassifyBatch_OK(t *testing.T) {
	output := &usecase.ClassifyBatchOutput{
		Results: []usecase.ClassifiedItem{{
			ClassificationResult: domain.ClassificationResult{
				ID:              "1",
				SousFamilleCode: "1001",
				FullPath:        "LIQUIDES > BOISSONS > JUS > JUS ORANGE",
			},
			TitleNormalized: "jus orange",
			Rank:            1,
			Decision:        domain.DecisionConfident,
		}},
		Timings:       usecase.Timings{RetrievalMs: 12, LLMMs: 340, TotalMs: 360},
		Tokens:        domain.TokenUsage{Input: 100, Output: 40, Total: 140},
		RankHistogram: map[string]int{"1": 1},
	}
	handler := classify_http.NewHandler(&stubClassifyUsecase{output: output}, fixedHash("abc123"))

	rec := perform(t, handler, `{"items":[{"id":"1","title":"Jus d'Orange 1L"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc123", body["taxonomy_hash"])

	results := body["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "jus orange", first["title_normalized"])
	assert.Equal(t, float64(1), first["rank"])

	timings := body["timings"].(map[string]any)
	assert.Equal(t, float64(12), timings["retrievalMs"])
	assert.Equal(t, float64(340), timings["llmMs"])
	assert.Equal(t, float64(360), timings["totalMs"])
}

func TestHandler_ClassifyBatch_InvalidBody(t *testing.T) {
	handler := classify_http.NewHandler(&stubClassifyUsecase{output: &usecase.ClassifyBatchOutput{}}, nil)

	rec := perform(t, handler, `{"items": "not an array"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_body", body["error"])
}

func TestHandler_ClassifyBatch_ValidationError(t *testing.T) {
	handler := classify_http.NewHandler(&stubClassifyUsecase{
		err: fmt.Errorf("%w: duplicate item id \"1\"", domain.ErrInvalidBatch),
	}, nil)

	rec := perform(t, handler, `{"items":[{"id":"1","title":"a"},{"id":"1","title":"b"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_body", body["error"])
	assert.Contains(t, body["message"], "duplicate item id")
}

func TestHandler_ClassifyBatch_UpstreamFailures(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantError string
	}{
		{"Retrieval down", fmt.Errorf("%w: index not loaded", domain.ErrRetrievalUnavailable), "retrieval_unavailable"},
		{"Adjudication down", fmt.Errorf("%w: llm timeout", domain.ErrAdjudicationFailed), "adjudication_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := classify_http.NewHandler(&stubClassifyUsecase{err: tc.err}, nil)

			rec := perform(t, handler, `{"items":[{"id":"1","title":"Jus"}]}`)
			assert.Equal(t, http.StatusBadGateway, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantError, body["error"])
		})
	}
}

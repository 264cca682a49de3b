package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/kiln/internal/errdefs"
	"github.com/samcharles93/kiln/internal/inference"
)

// GenerateRequest is the body of POST /v1/generate and /v1/generate/stream.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	Candidates  *int     `json:"candidates,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// GenerateResponse is the blocking endpoint's reply.
type GenerateResponse struct {
	ID           string    `json:"id"`
	Object       string    `json:"object"`
	Created      int64     `json:"created"`
	Texts        []string  `json:"texts"`
	Scores       []float32 `json:"scores,omitempty"`
	FinishReason string    `json:"finish_reason"`
	Usage        Usage     `json:"usage"`
}

type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	PrefillTPS       float64 `json:"prefill_tps"`
	DecodeTPS        float64 `json:"decode_tps"`
}

// GenerateChunk is one SSE event on the streaming endpoint.
type GenerateChunk struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Created      int64  `json:"created"`
	Delta        string `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

func (s *Server) resolveRequest(req GenerateRequest) (inference.Request, error) {
	if req.Prompt == "" {
		return inference.Request{}, errdefs.InvalidArgumentf("prompt is required")
	}
	return inference.ResolveRequest(req.Prompt, inference.RequestOptions{
		Candidates:  req.Candidates,
		Steps:       req.MaxTokens,
		Seed:        req.Seed,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}, s.defaults), nil
}

func usageFrom(stats inference.Stats) Usage {
	return Usage{
		PromptTokens:     stats.PromptTokens,
		CompletionTokens: stats.TokensGenerated,
		TotalTokens:      stats.PromptTokens + stats.TokensGenerated,
		PrefillTPS:       stats.PrefillTPS,
		DecodeTPS:        stats.DecodeTPS,
	}
}

func (s *Server) handleGenerate(c *echo.Context) error {
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	req, err := s.resolveRequest(body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	result, err := s.engine.Generate(c.Request().Context(), &req, nil)
	if err != nil {
		if errors.Is(err, errdefs.ErrInvalidArgument) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	return writeJSON(c, http.StatusOK, GenerateResponse{
		ID:           "gen-" + uuid.NewString(),
		Object:       "generation",
		Created:      s.clock().Unix(),
		Texts:        result.Texts,
		Scores:       result.Scores,
		FinishReason: result.FinishReason,
		Usage:        usageFrom(result.Stats),
	})
}

func (s *Server) handleGenerateStream(c *echo.Context) error {
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	req, err := s.resolveRequest(body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	sse, err := newSSEWriter(c)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	id := "gen-" + uuid.NewString()
	created := s.clock().Unix()

	result, err := s.engine.Generate(c.Request().Context(), &req, func(delta string) {
		_ = sse.send(GenerateChunk{
			ID:      id,
			Object:  "generation.chunk",
			Created: created,
			Delta:   delta,
		})
	})
	if err != nil {
		// Headers are out already, so the error travels as a chunk.
		_ = sse.send(map[string]any{"error": err.Error()})
		sse.finish()
		return nil
	}

	usage := usageFrom(result.Stats)
	_ = sse.send(GenerateChunk{
		ID:           id,
		Object:       "generation.chunk",
		Created:      created,
		FinishReason: result.FinishReason,
		Usage:        &usage,
	})
	sse.finish()
	return nil
}

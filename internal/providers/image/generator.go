package image

import (
	"context"

	"brandforge/internal/providers/genai"
)

// GenerateRequest describes a normalized request passed to any image provider.
// ContinuationRef carries the previous attempt's image reference on
// refinement turns.
type GenerateRequest struct {
	Prompt          string
	BrandID         string
	RequestID       string
	SessionID       string
	ContinuationRef string
}

// Asset represents a generated or refined image.
type Asset struct {
	URL    string
	Format string
	Width  int
	Height int
	Data   []byte
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:          req.Prompt,
		BrandID:         req.BrandID,
		RequestID:       req.RequestID,
		SessionID:       req.SessionID,
		ContinuationRef: req.ContinuationRef,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{
		URL:    asset.URL,
		Format: asset.Format,
		Width:  asset.Width,
		Height: asset.Height,
		Data:   asset.Data,
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)

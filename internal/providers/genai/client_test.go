package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticImageIsDeterministic(t *testing.T) {
	c, err := NewClient(Options{})
	require.NoError(t, err)

	req := ImageRequest{Prompt: "summer banner", BrandID: "acme", RequestID: "job-1"}
	first, err := c.GenerateImage(context.Background(), req)
	require.NoError(t, err)
	second, err := c.GenerateImage(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, "image/png", first.Format)
	assert.Equal(t, 1024, first.Width)
	assert.NotEmpty(t, first.Data)

	// A continuation turn must not reproduce the original render.
	refined, err := c.GenerateImage(context.Background(), ImageRequest{
		Prompt: "summer banner", BrandID: "acme", RequestID: "job-1", ContinuationRef: "ref-1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.Data, refined.Data)
}

func TestSyntheticReasoningIsValidPayload(t *testing.T) {
	c, err := NewClient(Options{})
	require.NoError(t, err)

	raw, err := c.Reason(context.Background(), ReasonRequest{Instruction: "audit", RequestID: "job-1"})
	require.NoError(t, err)

	var parsed struct {
		Categories []struct {
			Category string  `json:"category"`
			Score    float64 `json:"score"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	require.NotEmpty(t, parsed.Categories)
	for _, cat := range parsed.Categories {
		assert.GreaterOrEqual(t, cat.Score, 0.0)
		assert.LessOrEqual(t, cat.Score, 100.0)
	}
}

func TestGenerateImageRemoteInlineData(t *testing.T) {
	png := renderSyntheticImage(64, 64, "cafe012345abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("key"))
		resp := geminiGenerateContentResponse{Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{
				InlineData: &geminiInlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(png),
				},
			}}},
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	asset, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "banner", RequestID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, png, asset.Data)
	assert.Equal(t, "image/png", asset.Format)
	assert.Equal(t, 64, asset.Width)
	assert.Equal(t, 64, asset.Height)
}

func TestGenerateImageSurfacesRemoteError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"backend overloaded"}}`)
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, MaxRetries: 1, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = c.GenerateImage(context.Background(), ImageRequest{Prompt: "banner", RequestID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend overloaded")
	assert.Equal(t, 1, calls)
}

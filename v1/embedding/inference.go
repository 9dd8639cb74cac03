package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// InferenceProvider calls an Azure AI inference /embeddings endpoint.
type InferenceProvider struct {
	baseURL    string
	apiVersion string
	credential string
	model      string
	dimensions int
	httpClient *http.Client
}

func newInferenceProvider(cfg *Config) (*InferenceProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference: missing AZURE_INFERENCE_ENDPOINT")
	}

	return &InferenceProvider{
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		apiVersion: cfg.APIVersion,
		credential: cfg.Credential,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutS) * time.Second},
	}, nil
}

type embeddingsRequest struct {
	Input          []string  `json:"input"`
	Model          string    `json:"model,omitempty"`
	Dimensions     int       `json:"dimensions,omitempty"`
	InputType      InputType `json:"input_type,omitempty"`
	EncodingFormat string    `json:"encoding_format"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Create generates embeddings for texts in a single request.
func (p *InferenceProvider) Create(ctx context.Context, inputType InputType, texts ...string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("inference: no texts provided")
	}

	endpoint := p.baseURL + "/embeddings"
	if p.apiVersion != "" {
		endpoint += "?api-version=" + url.QueryEscape(p.apiVersion)
	}

	var parsed embeddingsResponse
	err := p.postJSON(ctx, endpoint, embeddingsRequest{
		Input:          texts,
		Model:          p.model,
		Dimensions:     p.dimensions,
		InputType:      inputType,
		EncodingFormat: "float",
	}, &parsed)
	if err != nil {
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("inference: expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

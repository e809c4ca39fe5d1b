package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/visiontags/internal/domain/saliency"
	"github.com/okian/visiontags/internal/domain/types"
)

const (
	defaultRemoteTimeout = 10 * time.Second
	maxErrorBody         = 512
)

// Remote is an HTTP JSON client for an external inference server exposing
// POST /classify, /embed and /explain.
type Remote struct {
	name       string
	baseURL    string
	size       int
	httpClient *http.Client
	limiter    *rate.Limiter
}

type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func toJSON(t saliency.Tensor) tensorJSON {
	return tensorJSON{Shape: []int{t.C, t.H, t.W}, Data: t.Data}
}

func (t tensorJSON) tensor() (saliency.Tensor, error) {
	if len(t.Shape) != 3 || t.Shape[0]*t.Shape[1]*t.Shape[2] != len(t.Data) {
		return saliency.Tensor{}, fmt.Errorf("%w: malformed tensor shape %v", ErrRemote, t.Shape)
	}
	return saliency.Tensor{C: t.Shape[0], H: t.Shape[1], W: t.Shape[2], Data: t.Data}, nil
}

type remoteRequest struct {
	Image tensorJSON `json:"image"`
	Label string     `json:"label,omitempty"`
}

type classifyResponse struct {
	Scores []types.Score `json:"scores"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type explainResponse struct {
	Activations tensorJSON `json:"activations"`
	Gradients   tensorJSON `json:"gradients"`
}

// NewRemote creates a client for the server at spec.URL. A positive
// RatePerSec caps outgoing requests.
func NewRemote(key string, spec Spec) (*Remote, error) {
	if spec.URL == "" || spec.InputSize <= 0 {
		return nil, fmt.Errorf("%w: %s needs url and input_size", ErrInvalidSpec, key)
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	limit := rate.Inf
	if spec.RatePerSec > 0 {
		limit = rate.Limit(spec.RatePerSec)
	}
	return &Remote{
		name:       key + "@" + KindRemote,
		baseURL:    strings.TrimRight(spec.URL, "/"),
		size:       spec.InputSize,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// Name implements Model.
func (r *Remote) Name() string { return r.name }

// InputSize implements Model.
func (r *Remote) InputSize() int { return r.size }

// Classify implements Model.
func (r *Remote) Classify(ctx context.Context, x saliency.Tensor) ([]types.Score, error) {
	if err := checkInput(x, r.size); err != nil {
		return nil, err
	}
	var out classifyResponse
	if err := r.post(ctx, "/classify", remoteRequest{Image: toJSON(x)}, &out); err != nil {
		return nil, err
	}
	if len(out.Scores) == 0 {
		return nil, fmt.Errorf("%w: empty classification", ErrRemote)
	}
	sort.SliceStable(out.Scores, func(i, j int) bool { return out.Scores[i].P > out.Scores[j].P })
	return out.Scores, nil
}

// Embed implements Model.
func (r *Remote) Embed(ctx context.Context, x saliency.Tensor) ([]float64, error) {
	if err := checkInput(x, r.size); err != nil {
		return nil, err
	}
	var out embedResponse
	if err := r.post(ctx, "/embed", remoteRequest{Image: toJSON(x)}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrRemote)
	}
	return out.Embedding, nil
}

// Explain implements Model.
func (r *Remote) Explain(ctx context.Context, x saliency.Tensor, label string) (Explanation, error) {
	if err := checkInput(x, r.size); err != nil {
		return Explanation{}, err
	}
	var out explainResponse
	if err := r.post(ctx, "/explain", remoteRequest{Image: toJSON(x), Label: label}, &out); err != nil {
		return Explanation{}, err
	}
	act, err := out.Activations.tensor()
	if err != nil {
		return Explanation{}, err
	}
	grad, err := out.Gradients.tensor()
	if err != nil {
		return Explanation{}, err
	}
	return Explanation{Activations: act, Gradients: grad}, nil
}

func (r *Remote) post(ctx context.Context, path string, in, out any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s returned %d: %s", ErrRemote, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", ErrRemote, path, err)
	}
	return nil
}

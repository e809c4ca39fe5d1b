package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"

	"github.com/okian/visiontags/internal/domain/saliency"
	"github.com/okian/visiontags/internal/domain/types"
	"github.com/okian/visiontags/pkg/logger"
)

func image(size int, seed float64) saliency.Tensor {
	x := saliency.NewTensor(InputChannels, size, size)
	for i := range x.Data {
		x.Data[i] = math.Mod(float64(i)*0.37+seed, 1)
	}
	return x
}

func tinySpec() Spec {
	return Spec{Kind: KindBuiltin, Channels: 4, EmbeddingDim: 6, InputSize: 16, Seed: 3}
}

func TestBuiltin(t *testing.T) {
	ctx := context.Background()

	Convey("Given a builtin model", t, func() {
		m, err := NewBuiltin("tiny", tinySpec())
		So(err, ShouldBeNil)
		x := image(16, 0.1)

		Convey("Then it is named key@kind", func() {
			So(m.Name(), ShouldEqual, "tiny@builtin")
			So(m.InputSize(), ShouldEqual, 16)
			So(m.Labels(), ShouldResemble, DefaultLabels)
		})

		Convey("When classifying", func() {
			scores, err := m.Classify(ctx, x)
			So(err, ShouldBeNil)

			Convey("Then every label is scored, sorted, and probabilities sum to one", func() {
				So(len(scores), ShouldEqual, len(DefaultLabels))
				var sum float64
				for i, s := range scores {
					sum += s.P
					if i > 0 {
						So(s.P, ShouldBeLessThanOrEqualTo, scores[i-1].P)
					}
				}
				So(sum, ShouldAlmostEqual, 1, 1e-9)
			})

			Convey("Then the same seed gives the same answer", func() {
				twin, err := NewBuiltin("tiny", tinySpec())
				So(err, ShouldBeNil)
				again, err := twin.Classify(ctx, x)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, scores)
			})
		})

		Convey("When embedding", func() {
			emb, err := m.Embed(ctx, x)
			So(err, ShouldBeNil)
			So(len(emb), ShouldEqual, 6)
			for _, v := range emb {
				So(v, ShouldBeGreaterThanOrEqualTo, 0)
			}
		})

		Convey("When explaining the top label", func() {
			scores, _ := m.Classify(ctx, x)
			exp, err := m.Explain(ctx, x, scores[0].Label)
			So(err, ShouldBeNil)

			Convey("Then activations and gradients share the conv output shape", func() {
				So(exp.Activations.C, ShouldEqual, 4)
				So(exp.Activations.H, ShouldEqual, 8)
				So(exp.Activations.W, ShouldEqual, 8)
				So(exp.Gradients.C, ShouldEqual, 4)
				So(len(exp.Gradients.Data), ShouldEqual, len(exp.Activations.Data))
			})

			Convey("Then the pair feeds the saliency mapper", func() {
				_, err := saliency.Heatmap(exp.Activations, exp.Gradients, 16, 16)
				So(err, ShouldBeNil)
			})

			Convey("Then repeated calls do not accumulate gradient", func() {
				again, err := m.Explain(ctx, x, scores[0].Label)
				So(err, ShouldBeNil)
				So(again.Gradients.Data, ShouldResemble, exp.Gradients.Data)
			})
		})

		Convey("When the input or label is wrong", func() {
			_, err := m.Classify(ctx, image(8, 0))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			_, err = m.Explain(ctx, x, "zebra")
			So(errors.Is(err, ErrUnknownLabel), ShouldBeTrue)
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := m.Embed(cctx, x)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})

	Convey("Given an incomplete spec", t, func() {
		_, err := NewBuiltin("bad", Spec{Kind: KindBuiltin, InputSize: 16})
		So(errors.Is(err, ErrInvalidSpec), ShouldBeTrue)
	})
}

func TestRemote(t *testing.T) {
	ctx := context.Background()

	Convey("Given an inference server", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/classify", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(classifyResponse{Scores: []types.Score{{Label: "dog", P: 0.2}, {Label: "cat", P: 0.8}}})
		})
		mux.HandleFunc("/embed", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{1, 2, 3}})
		})
		mux.HandleFunc("/explain", func(w http.ResponseWriter, r *http.Request) {
			var req remoteRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Label != "cat" {
				http.Error(w, "no such label", http.StatusBadRequest)
				return
			}
			grid := tensorJSON{Shape: []int{1, 2, 2}, Data: []float64{1, 2, 3, 4}}
			_ = json.NewEncoder(w).Encode(explainResponse{Activations: grid, Gradients: grid})
		})
		srv := httptest.NewServer(mux)
		m, err := NewRemote("far", Spec{Kind: KindRemote, URL: srv.URL + "/", InputSize: 4, RatePerSec: 1000})
		So(err, ShouldBeNil)
		x := image(4, 0.5)

		Convey("Then scores come back sorted", func() {
			scores, err := m.Classify(ctx, x)
			So(err, ShouldBeNil)
			So(scores[0].Label, ShouldEqual, "cat")
			So(m.Name(), ShouldEqual, "far@remote")
		})

		Convey("Then embeddings and explanations decode", func() {
			emb, err := m.Embed(ctx, x)
			So(err, ShouldBeNil)
			So(emb, ShouldResemble, []float64{1, 2, 3})

			exp, err := m.Explain(ctx, x, "cat")
			So(err, ShouldBeNil)
			So(exp.Activations.H, ShouldEqual, 2)
		})

		Convey("Then a server error surfaces as ErrRemote", func() {
			_, err := m.Explain(ctx, x, "dog")
			So(errors.Is(err, ErrRemote), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "no such label")
		})

		Reset(srv.Close)
	})

	Convey("Given a spec without a url", t, func() {
		_, err := NewRemote("far", Spec{Kind: KindRemote, InputSize: 4})
		So(errors.Is(err, ErrInvalidSpec), ShouldBeTrue)
	})
}

func TestRegistry(t *testing.T) {
	require.NoError(t, logger.Init())
	ctx := context.Background()

	specs := map[string]Spec{
		"tiny":   tinySpec(),
		"alien":  {Kind: "quantum"},
		"broken": {Kind: KindBuiltin},
	}

	t.Run("lazy and shared", func(t *testing.T) {
		r := NewRegistry(specs, WithMaxConcurrent(2))
		require.Equal(t, []string{"alien", "broken", "tiny"}, r.Keys())
		require.Equal(t, 0, r.Loaded())

		var wg sync.WaitGroup
		got := make([]Model, 8)
		for i := range got {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				m, err := r.Get(ctx, "tiny")
				if err == nil {
					got[i] = m
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, r.Loaded())
		for _, m := range got {
			require.NotNil(t, m)
			require.Same(t, got[0], m)
		}

		scores, err := got[0].Classify(ctx, image(16, 0.2))
		require.NoError(t, err)
		require.Len(t, scores, len(DefaultLabels))
	})

	t.Run("errors", func(t *testing.T) {
		r := NewRegistry(specs)

		_, err := r.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrUnknownModel)

		_, err = r.Get(ctx, "alien")
		require.ErrorIs(t, err, ErrUnknownKind)

		_, err = r.Get(ctx, "broken")
		require.ErrorIs(t, err, ErrInvalidSpec)
		require.Equal(t, 0, r.Loaded())
	})

	t.Run("bounded inference honours cancellation", func(t *testing.T) {
		r := NewRegistry(specs, WithMaxConcurrent(1))
		m, err := r.Get(ctx, "tiny")
		require.NoError(t, err)

		b := m.(*bounded)
		require.True(t, b.sem.TryAcquire(1))
		defer b.sem.Release(1)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = m.Embed(cctx, image(16, 0))
		require.ErrorIs(t, err, context.Canceled)
	})
}

package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

// failingClient always returns an error, simulating an exhausted provider.
type failingClient struct {
	calls int
}

func (f *failingClient) Embed(_ context.Context, _ string) (Result, error) {
	f.calls++
	return Result{}, errors.New("provider down")
}

func TestSyntheticVector_Deterministic(t *testing.T) {
	t.Parallel()

	a := SyntheticVector("what is the refund policy?", 1536)
	b := SyntheticVector("what is the refund policy?", 1536)

	if len(a) != 1536 {
		t.Fatalf("want dimension 1536, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestSyntheticVector_DistinctTextsDiffer(t *testing.T) {
	t.Parallel()

	a := SyntheticVector("alpha", 64)
	b := SyntheticVector("beta", 64)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical synthetic vectors")
	}
}

func TestSyntheticVector_UnitNorm(t *testing.T) {
	t.Parallel()

	for _, dim := range []int{8, 768, 1536} {
		vec := SyntheticVector("normalize me", dim)
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		if math.Abs(norm-1.0) > 1e-3 {
			t.Errorf("dim %d: want unit norm, got %f", dim, norm)
		}
	}
}

func TestSyntheticVector_ValuesInRange(t *testing.T) {
	t.Parallel()

	for _, v := range SyntheticVector("range check", 256) {
		if v < -1.0 || v > 1.0 {
			t.Fatalf("component %v outside [-1, 1]", v)
		}
	}
}

func TestFallback_DegradesOnProviderFailure(t *testing.T) {
	t.Parallel()

	inner := &failingClient{}
	f := NewFallback(inner, 768, nil)

	res, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("want 1 provider call, got %d", inner.calls)
	}
	if res.Model != FallbackModel {
		t.Errorf("want model %q, got %q", FallbackModel, res.Model)
	}
	if len(res.Vector) != 768 {
		t.Errorf("want dimension 768, got %d", len(res.Vector))
	}
	if res.ID != Fingerprint("hello") {
		t.Errorf("want fingerprint id, got %q", res.ID)
	}
}

func TestFallback_NilProviderAlwaysSynthetic(t *testing.T) {
	t.Parallel()

	f := NewFallback(nil, 32, nil)

	first, err := f.Embed(context.Background(), "offline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.Embed(context.Background(), "offline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range first.Vector {
		if first.Vector[i] != second.Vector[i] {
			t.Fatal("synthetic vectors for identical text differ")
		}
	}
}

func TestFallback_PassesThroughProviderResult(t *testing.T) {
	t.Parallel()

	inner := &staticClient{result: Result{ID: "x", Vector: []float32{1, 0}, Model: "real-model"}}
	f := NewFallback(inner, 2, nil)

	res, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "real-model" {
		t.Errorf("want provider result passed through, got model %q", res.Model)
	}
}

// staticClient returns a fixed result on every call.
type staticClient struct {
	result Result
	calls  int
}

func (s *staticClient) Embed(_ context.Context, _ string) (Result, error) {
	s.calls++
	return s.result, nil
}

func TestFingerprint_StableAndHex(t *testing.T) {
	t.Parallel()

	a := Fingerprint("some text")
	b := Fingerprint("some text")
	if a != b {
		t.Errorf("fingerprint not stable: %q != %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("want 32 hex chars, got %d", len(a))
	}
	if a == Fingerprint("other text") {
		t.Error("distinct texts share a fingerprint")
	}
}

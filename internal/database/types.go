package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Shape identifies how one identity's embeddings were persisted.
type Shape int

const (
	// ShapeInvalid is the zero value; it never survives decoding.
	ShapeInvalid Shape = iota
	// ShapeFlat is a single embedding stored as a bare vector (legacy files).
	ShapeFlat
	// ShapeStacked is a list of equal-length vectors.
	ShapeStacked
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeStacked:
		return "stacked"
	default:
		return "invalid"
	}
}

// ErrBadShape is wrapped by every decoding failure of a persisted value.
var ErrBadShape = errors.New("unsupported embedding shape")

// PersistedEmbeddings is one identity's embeddings as found in storage,
// before normalization. Exactly one of Flat and Stacked is set, per Kind.
type PersistedEmbeddings struct {
	Kind    Shape
	Flat    []float32
	Stacked [][]float32
}

// Normalize returns the canonical list of embeddings.
func (p PersistedEmbeddings) Normalize() [][]float32 {
	switch p.Kind {
	case ShapeFlat:
		return [][]float32{p.Flat}
	case ShapeStacked:
		return p.Stacked
	default:
		return nil
	}
}

// DecodeEmbeddings classifies a decoded document value. It accepts the
// generic values produced by JSON and MessagePack decoders as well as typed
// slices. Empty, ragged, non-numeric and deeper-nested values fail with
// ErrBadShape.
func DecodeEmbeddings(v any) (PersistedEmbeddings, error) {
	switch t := v.(type) {
	case []float32:
		if len(t) == 0 {
			return PersistedEmbeddings{}, fmt.Errorf("empty vector: %w", ErrBadShape)
		}
		return PersistedEmbeddings{Kind: ShapeFlat, Flat: t}, nil
	case [][]float32:
		items := make([]any, len(t))
		for i, row := range t {
			items[i] = row
		}
		return decodeList(items)
	case []any:
		return decodeList(t)
	default:
		return PersistedEmbeddings{}, fmt.Errorf("value of type %T: %w", v, ErrBadShape)
	}
}

func decodeList(items []any) (PersistedEmbeddings, error) {
	if len(items) == 0 {
		return PersistedEmbeddings{}, fmt.Errorf("empty list: %w", ErrBadShape)
	}

	if _, ok := toFloat(items[0]); ok {
		vec, err := decodeVector(items)
		if err != nil {
			return PersistedEmbeddings{}, err
		}
		return PersistedEmbeddings{Kind: ShapeFlat, Flat: vec}, nil
	}

	stacked := make([][]float32, len(items))
	for i, item := range items {
		var vec []float32
		switch row := item.(type) {
		case []float32:
			vec = row
		case []any:
			var err error
			if vec, err = decodeVector(row); err != nil {
				return PersistedEmbeddings{}, fmt.Errorf("row %d: %w", i, err)
			}
		default:
			return PersistedEmbeddings{}, fmt.Errorf("row %d of type %T: %w", i, item, ErrBadShape)
		}
		if len(vec) == 0 {
			return PersistedEmbeddings{}, fmt.Errorf("row %d is empty: %w", i, ErrBadShape)
		}
		if i > 0 && len(vec) != len(stacked[0]) {
			return PersistedEmbeddings{}, fmt.Errorf("row %d has length %d, want %d: %w", i, len(vec), len(stacked[0]), ErrBadShape)
		}
		stacked[i] = vec
	}
	return PersistedEmbeddings{Kind: ShapeStacked, Stacked: stacked}, nil
}

func decodeVector(items []any) ([]float32, error) {
	vec := make([]float32, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, fmt.Errorf("element %d of type %T is not a number: %w", i, item, ErrBadShape)
		}
		vec[i] = f
	}
	return vec, nil
}

func toFloat(v any) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int:
		return float32(n), true
	case int8:
		return float32(n), true
	case int16:
		return float32(n), true
	case int32:
		return float32(n), true
	case int64:
		return float32(n), true
	case uint:
		return float32(n), true
	case uint8:
		return float32(n), true
	case uint16:
		return float32(n), true
	case uint32:
		return float32(n), true
	case uint64:
		return float32(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return float32(f), true
	default:
		return 0, false
	}
}

// NormalizeDocument converts a decoded document keyed by identity into the
// canonical gallery. Identities whose value has a bad shape are logged and
// skipped; the rest of the document still loads.
func NormalizeDocument(doc map[string]any, logger *zap.Logger) map[string][][]float32 {
	if logger == nil {
		logger = zap.NewNop()
	}

	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string][][]float32, len(doc))
	for _, id := range ids {
		if id == "" {
			logger.Warn("skipping identity with empty name")
			continue
		}
		p, err := DecodeEmbeddings(doc[id])
		if err != nil {
			logger.Warn("skipping identity with unsupported embedding shape",
				zap.String("identity", id),
				zap.Error(err))
			continue
		}
		if p.Kind == ShapeFlat {
			logger.Debug("normalized legacy flat embedding", zap.String("identity", id))
		}
		out[id] = p.Normalize()
	}
	return out
}

// Package qdrantidx implements kvstore.VectorIndex against Qdrant, the
// collaborator SPEC_FULL.md §4.8 calls out for VSIM branches. Grounded on
// the teacher's qdrant_vector.go: one collection per vector field, points
// addressed by a deterministic UUID derived from the numeric docId, with
// the original docId round-tripped through the point payload exactly as
// the teacher round-trips its original string id through PAYLOAD_ID_FIELD.
package qdrantidx

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"aggsearch/internal/kvstore"
)

// payloadDocIDField stores the original uint64 docId in each point's
// payload, the same trick the teacher uses to recover a non-UUID id.
const payloadDocIDField = "_doc_id"

// Index is a kvstore.VectorIndex backed by one Qdrant collection per
// field name, since a document may carry more than one vector field.
type Index struct {
	client      *qdrant.Client
	collections map[string]string // field -> collection name
	prefix      string
}

// New wraps an already-dialed client; prefix namespaces this index's
// collections (e.g. the FT index name) so distinct indexes don't collide.
func New(client *qdrant.Client, prefix string) *Index {
	return &Index{client: client, collections: map[string]string{}, prefix: prefix}
}

func (idx *Index) collectionFor(field string) string {
	return idx.prefix + "_" + field
}

// EnsureCollection creates the field's collection if it doesn't exist,
// sized for dimension and scored by the named distance metric
// (cosine|l2|ip, defaulting to cosine — the teacher's switch).
func (idx *Index) EnsureCollection(ctx context.Context, field string, dimension int, metric string) error {
	coll := idx.collectionFor(field)
	exists, err := idx.client.CollectionExists(ctx, coll)
	if err != nil {
		return fmt.Errorf("qdrantidx: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	if dimension <= 0 {
		return fmt.Errorf("qdrantidx: dimension must be > 0")
	}
	return idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: coll,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distance,
		}),
	})
}

// pointUUID derives a stable UUID from a numeric docId, since Qdrant only
// accepts UUIDs or unsigned integers as point ids and the pipeline's
// docIds are process-local (not guaranteed to fit Qdrant's own counter).
func pointUUID(docID uint64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("doc:%d", docID))).String()
}

// Upsert writes or replaces docID's vector for field.
func (idx *Index) Upsert(ctx context.Context, field string, docID uint64, vec []float32) error {
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(pointUUID(docID)),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(map[string]any{payloadDocIDField: fmt.Sprintf("%d", docID)}),
	}}
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collectionFor(field),
		Points:         points,
	})
	return err
}

// Delete removes docID's vector for field.
func (idx *Index) Delete(ctx context.Context, field string, docID uint64) error {
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collectionFor(field),
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID(docID))),
	})
	return err
}

// KNN implements kvstore.VectorIndex: blob is the query vector, encoded
// as a flat little-endian float32 buffer by the caller (the command
// layer owns the wire decode).
func (idx *Index) KNN(ctx context.Context, field string, blob []byte, k int) ([]kvstore.VectorHit, error) {
	if k <= 0 {
		k = 10
	}
	vec, err := decodeFloat32LE(blob)
	if err != nil {
		return nil, err
	}
	limit := uint64(k)
	hits, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collectionFor(field),
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrantidx: query %s: %w", field, err)
	}
	out := make([]kvstore.VectorHit, 0, len(hits))
	for _, h := range hits {
		docID, ok := docIDFromPayload(h.Payload)
		if !ok {
			continue
		}
		out = append(out, kvstore.VectorHit{DocID: docID, Distance: float64(h.Score)})
	}
	return out, nil
}

func docIDFromPayload(payload map[string]*qdrant.Value) (uint64, bool) {
	v, ok := payload[payloadDocIDField]
	if !ok {
		return 0, false
	}
	var id uint64
	for _, c := range v.GetStringValue() {
		if c < '0' || c > '9' {
			return 0, false
		}
		id = id*10 + uint64(c-'0')
	}
	return id, true
}

func decodeFloat32LE(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("qdrantidx: vector blob length %d not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

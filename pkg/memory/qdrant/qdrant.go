// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package qdrant provides a similarity store on a Qdrant server.
// Each owner maps to one collection using cosine distance.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/agora/pkg/memory"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	collectionPrefix = "role_mem_"
	textKey          = "text"
	metadataPrefix   = "meta_"
	scrollPageSize   = 256
)

// Backend opens per-owner collections on a Qdrant server.
type Backend struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	embedder    memory.Embedder
}

var _ memory.Backend = (*Backend)(nil)

// New connects to the Qdrant gRPC endpoint at addr.
func New(addr string, embedder memory.Embedder) (*Backend, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("did not connect: %v", err)
	}
	if embedder == nil {
		embedder = memory.NewHashEmbedder(0)
	}
	return &Backend{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		embedder:    embedder,
	}, nil
}

// Close closes the gRPC connection.
func (b *Backend) Close() error {
	return b.conn.Close()
}

// CollectionName maps an owner id to its collection.
func CollectionName(owner string) string {
	var sb strings.Builder
	sb.WriteString(collectionPrefix)
	for _, r := range owner {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

func (b *Backend) exists(ctx context.Context, name string) (bool, error) {
	resp, err := b.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// Load opens the owner's collection when it exists and holds points.
func (b *Backend) Load(ctx context.Context, owner string) (memory.SimilarityStore, bool, error) {
	name := CollectionName(owner)
	ok, err := b.exists(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	exact := true
	resp, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: name, Exact: &exact})
	if err != nil {
		return nil, false, fmt.Errorf("failed to count points: %w", err)
	}
	if resp.GetResult().GetCount() == 0 {
		return nil, false, nil
	}
	return b.store(name), true, nil
}

// Create opens the owner's collection, creating it with the embedder's
// dimension when missing.
func (b *Backend) Create(ctx context.Context, owner string) (memory.SimilarityStore, error) {
	name := CollectionName(owner)
	ok, err := b.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		probe, err := b.embedder.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, fmt.Errorf("failed to get embedding dimension: %w", err)
		}
		_, err = b.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(len(probe)),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create collection: %w", err)
		}
	}
	return b.store(name), nil
}

// Drop deletes the owner's collection if it exists.
func (b *Backend) Drop(ctx context.Context, owner string) error {
	name := CollectionName(owner)
	ok, err := b.exists(ctx, name)
	if err != nil || !ok {
		return err
	}
	if _, err := b.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (b *Backend) store(name string) *Store {
	return &Store{points: b.points, embedder: b.embedder, collection: name}
}

// Store is one owner's collection.
type Store struct {
	points     pb.PointsClient
	embedder   memory.Embedder
	collection string
}

var _ memory.SimilarityStore = (*Store)(nil)

// AddText upserts a point. id must be a UUID.
func (s *Store) AddText(ctx context.Context, id, text string, metadata map[string]string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed text: %w", err)
	}
	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID(id),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: memory.Normalize(vec)},
				},
			},
			Payload: toPayload(text, metadata),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// SearchSimilarWithScore converts cosine similarity s into the squared L2
// distance 2-2s of the normalized vectors.
func (s *Store) SearchSimilarWithScore(ctx context.Context, query string, k int) ([]memory.ScoredDocument, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         memory.Normalize(vec),
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	hits := make([]memory.ScoredDocument, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = memory.ScoredDocument{
			Document: fromPayload(idString(r.GetId()), r.GetPayload()),
			Score:    CosineToDistance(r.GetScore()),
		}
	}
	return hits, nil
}

// Documents scrolls the whole collection.
func (s *Store) Documents(ctx context.Context) ([]memory.Document, error) {
	var (
		docs   []memory.Document
		offset *pb.PointId
	)
	limit := uint32(scrollPageSize)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, p := range resp.GetResult() {
			docs = append(docs, fromPayload(idString(p.GetId()), p.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return docs, nil
		}
	}
}

// Delete removes the point with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}

// Persist is a no-op: upserts are acknowledged by the server.
func (s *Store) Persist(context.Context) error { return nil }

// Close is a no-op; the Backend owns the connection.
func (s *Store) Close() error { return nil }

// CosineToDistance maps cosine similarity to squared L2 distance between
// unit vectors.
func CosineToDistance(score float32) float64 {
	d := 2 - 2*float64(score)
	if d < 0 {
		return 0
	}
	return d
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func idString(id *pb.PointId) string {
	if id.GetUuid() != "" {
		return id.GetUuid()
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func toPayload(text string, metadata map[string]string) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(metadata)+1)
	payload[textKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: text}}
	for k, v := range metadata {
		payload[metadataPrefix+k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	return payload
}

func fromPayload(id string, payload map[string]*pb.Value) memory.Document {
	doc := memory.Document{ID: id, Metadata: make(map[string]string)}
	for k, v := range payload {
		sv, ok := v.GetKind().(*pb.Value_StringValue)
		if !ok {
			continue
		}
		switch {
		case k == textKey:
			doc.Text = sv.StringValue
		case strings.HasPrefix(k, metadataPrefix):
			doc.Metadata[strings.TrimPrefix(k, metadataPrefix)] = sv.StringValue
		}
	}
	return doc
}

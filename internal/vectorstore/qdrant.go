package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ragd.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the 6333 REST port).
	Port int

	// APIKey authenticates against a secured Qdrant deployment. Optional.
	APIKey string

	// Collection is the default collection for operations.
	Collection string

	// Dimension is the embedding dimension. Must match the local index.
	Dimension int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Timeout bounds every network call so a hung connection cannot stall
	// the Selector's degrade decision. Default: 5s.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return ValidateCollectionName(c.Collection)
}

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, name)
	}
	return nil
}

// classifyRemoteErr separates connection-class failures (eligible for
// degradation) from data errors (propagated unchanged). Timeouts, refused
// connections and transport-level auth failures are connection-class;
// invalid arguments and not-found are not.
func classifyRemoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out: %v", ErrConnectionFailed, op, err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted,
			grpccodes.ResourceExhausted, grpccodes.Unauthenticated, grpccodes.PermissionDenied:
			return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// QdrantStore is the primary store: a Store implementation on Qdrant's
// native gRPC client.
//
// Collections are created with Euclidean distance so the remote index shares
// the local index's ascending-score ordering (smaller = more relevant).
// Point ids are derived deterministically from record ids, so re-inserting a
// chunk id overwrites rather than duplicates.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore creates a QdrantStore. The constructor only dials; it does
// not probe connectivity; the Selector owns the startup probe so that an
// unreachable remote degrades instead of failing startup.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &QdrantStore{
		client: client,
		cfg:    cfg,
		logger: logger.Named("qdrant"),
	}, nil
}

// Backend identifies this store as the remote backend.
func (s *QdrantStore) Backend() Backend { return BackendRemote }

// opContext bounds a network call with the configured timeout.
func (s *QdrantStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// Probe tests connectivity with a lightweight list-collections call.
func (s *QdrantStore) Probe(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.client.ListCollections(ctx); err != nil {
		return classifyRemoteErr("probe", err)
	}
	return nil
}

// CreateCollection creates the collection if it does not exist. An existing
// collection with a different dimension fails with ErrInvalidConfig.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreateCollection")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("dimension", dimension),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	info, err := s.client.GetCollectionInfo(opCtx, name)
	if err == nil {
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params != nil && int(params.GetSize()) != dimension {
			err := fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				ErrInvalidConfig, name, params.GetSize(), dimension)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		err = classifyRemoteErr("checking collection", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	createCtx, cancelCreate := s.opContext(ctx)
	defer cancelCreate()

	err = s.client.CreateCollection(createCtx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		err = classifyRemoteErr("creating collection", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.logger.Info("collection created", zap.String("collection", name), zap.Int("dimension", dimension))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// pointID derives a stable UUID point id from a record id. Qdrant requires
// UUID (or integer) point ids; deriving deterministically keeps upserts of
// the same chunk id idempotent.
func pointID(recordID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragd:"+recordID)).String())
}

// Insert upserts records into the default collection.
func (s *QdrantStore) Insert(ctx context.Context, records []Record) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Insert")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.cfg.Collection),
	)

	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != s.cfg.Dimension {
			err := fmt.Errorf("%w: record %q has dimension %d, collection requires %d",
				ErrInvalidConfig, r.ID, len(r.Vector), s.cfg.Dimension)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		payload := map[string]*qdrant.Value{
			"id":   {Kind: &qdrant.Value_StringValue{StringValue: r.ID}},
			"text": {Kind: &qdrant.Value_StringValue{StringValue: r.Text}},
		}
		for k, v := range r.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: payload,
		}
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.client.Upsert(opCtx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	}); err != nil {
		err = classifyRemoteErr("upsert", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// buildFilter converts exact-match metadata filters to a Qdrant filter.
func buildFilter(filters map[string]string) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// Search performs similarity search with optional native metadata filters.
// Scores are Euclidean distances, ascending.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.cfg.Collection),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", ErrInvalidInput, topK)
	}
	if len(vector) != s.cfg.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection requires %d",
			ErrInvalidConfig, len(vector), s.cfg.Dimension)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	points, err := s.client.Query(opCtx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(filters),
	})
	if err != nil {
		err = classifyRemoteErr("search", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]SearchResult, len(points))
	for i, point := range points {
		results[i] = scoredPointToResult(point)
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// scoredPointToResult extracts id, text and metadata from a point payload.
func scoredPointToResult(point *qdrant.ScoredPoint) SearchResult {
	result := SearchResult{Score: float64(point.GetScore())}
	payload := point.GetPayload()
	if len(payload) > 0 {
		result.Metadata = make(map[string]string, len(payload))
	}
	for k, v := range payload {
		sv, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case "id":
			result.ID = sv.StringValue
		case "text":
			result.Text = sv.StringValue
		default:
			result.Metadata[k] = sv.StringValue
		}
	}
	return result
}

// DeleteByIDs deletes records by chunk id via a payload filter, matching the
// "id" field rather than the derived point ids.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByIDs")
	defer span.End()
	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("collection", s.cfg.Collection),
	)

	if len(ids) == 0 {
		return 0, nil
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "id",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: ids},
						},
					},
				},
			},
		}},
	}

	// Count first so the caller learns how many records existed.
	countCtx, cancelCount := s.opContext(ctx)
	defer cancelCount()
	count, err := s.client.Count(countCtx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		err = classifyRemoteErr("counting for delete", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if _, err := s.client.Delete(opCtx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	}); err != nil {
		err = classifyRemoteErr("delete", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetStatus(codes.Ok, "success")
	return int(count), nil
}

// IDsForDocument scrolls all points whose document_id matches.
func (s *QdrantStore) IDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.IDsForDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	if documentID == "" {
		return nil, fmt.Errorf("%w: document id required", ErrInvalidInput)
	}

	filter := buildFilter(map[string]string{"document_id": documentID})

	countCtx, cancelCount := s.opContext(ctx)
	defer cancelCount()
	count, err := s.client.Count(countCtx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		err = classifyRemoteErr("counting document chunks", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	points, err := s.client.Scroll(opCtx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(count)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		err = classifyRemoteErr("scrolling document chunks", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ids := make([]string, 0, len(points))
	for _, point := range points {
		if v, ok := point.GetPayload()["id"]; ok {
			if sv, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
				ids = append(ids, sv.StringValue)
			}
		}
	}

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	span.SetStatus(codes.Ok, "success")
	return ids, nil
}

// Count returns the number of vectors in the default collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, classifyRemoteErr("count", err)
	}
	return int(count), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Ensure QdrantStore implements Store and Prober.
var (
	_ Store  = (*QdrantStore)(nil)
	_ Prober = (*QdrantStore)(nil)
)

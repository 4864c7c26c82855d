package server

import (
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/shmor3/simse/pkg/core"
	"github.com/shmor3/simse/pkg/graph"
	"github.com/shmor3/simse/pkg/learning"
	"github.com/shmor3/simse/pkg/store"
)

// ---------------------------------------------------------------------------
// Param types (camelCase on the wire)
// ---------------------------------------------------------------------------

type initializeParams struct {
	StoragePath           string   `json:"storagePath,omitempty"`
	DuplicateThreshold    *float64 `json:"duplicateThreshold,omitempty"`
	DuplicateBehavior     string   `json:"duplicateBehavior,omitempty"`
	MaxRegexPatternLength *int     `json:"maxRegexPatternLength,omitempty"`
	LearningEnabled       *bool    `json:"learningEnabled,omitempty"`
	RecencyHalfLifeMs     *float64 `json:"recencyHalfLifeMs,omitempty"`
	TopicCatalogThreshold *float64 `json:"topicCatalogThreshold,omitempty"`
}

type addParams struct {
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type addBatchParams struct {
	Entries []core.AddEntry `json:"entries"`
}

type idParams struct {
	ID string `json:"id"`
}

type idsParams struct {
	IDs []string `json:"ids"`
}

type searchParams struct {
	QueryEmbedding []float32 `json:"queryEmbedding"`
	MaxResults     *int      `json:"maxResults,omitempty"`
	Threshold      *float64  `json:"threshold,omitempty"`
}

type filterByMetadataParams struct {
	Filters []core.MetadataFilter `json:"filters"`
}

type filterByTopicParams struct {
	Topics []string `json:"topics"`
}

type checkDuplicateParams struct {
	Embedding []float32 `json:"embedding"`
	Threshold *float64  `json:"threshold,omitempty"`
}

type findDuplicatesParams struct {
	Threshold *float64 `json:"threshold,omitempty"`
}

type catalogResolveParams struct {
	Topic string `json:"topic"`
}

type catalogRelocateParams struct {
	VolumeID string `json:"volumeId"`
	NewTopic string `json:"newTopic"`
}

type catalogMergeParams struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type recordQueryParams struct {
	Embedding   []float32 `json:"embedding"`
	SelectedIDs []string  `json:"selectedIds"`
}

type recordFeedbackParams struct {
	EntryID  string `json:"entryId"`
	Relevant bool   `json:"relevant"`
}

type queryParseParams struct {
	DSL string `json:"dsl"`
}

type graphNeighborsParams struct {
	ID         string   `json:"id"`
	EdgeTypes  []string `json:"edgeTypes,omitempty"`
	MaxResults *int     `json:"maxResults,omitempty"`
}

type graphTraverseParams struct {
	ID         string   `json:"id"`
	Depth      *int     `json:"depth,omitempty"`
	EdgeTypes  []string `json:"edgeTypes,omitempty"`
	MaxResults *int     `json:"maxResults,omitempty"`
}

type memoryContextLookup struct {
	Volume core.Volume `json:"volume"`
	Score  float64     `json:"score"`
}

type memoryContextOptions struct {
	MaxResults *int     `json:"maxResults,omitempty"`
	MinScore   *float64 `json:"minScore,omitempty"`
	Format     string   `json:"format,omitempty"`
	Tag        string   `json:"tag,omitempty"`
	MaxChars   *int     `json:"maxChars,omitempty"`
}

type memoryContextParams struct {
	Lookups []memoryContextLookup `json:"lookups"`
	Options *memoryContextOptions `json:"options,omitempty"`
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (s *Server) handleInitialize(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[initializeParams](req)
	if perr != nil {
		return nil, perr
	}

	cfg := store.Config{
		StoragePath:           s.defaults.StoragePath,
		DuplicateThreshold:    s.defaults.Store.DuplicateThreshold,
		DuplicateBehavior:     store.ParseDuplicateBehavior(s.defaults.Store.DuplicateBehavior),
		MaxRegexPatternLength: s.defaults.Store.MaxRegexPatternLength,
		LearningEnabled:       s.defaults.Learning.Enabled,
		LearningOptions: learning.Options{
			Enabled:              true,
			MaxQueryHistory:      s.defaults.Learning.MaxQueryHistory,
			QueryDecayMs:         s.defaults.Learning.QueryDecayMs,
			WeightAdaptationRate: s.defaults.Learning.WeightAdaptationRate,
			InterestBoostWeight:  s.defaults.Learning.InterestBoostWeight,
		},
		RecencyHalfLifeMs:     s.defaults.Store.RecencyHalfLifeMs,
		TopicCatalogThreshold: s.defaults.Store.TopicCatalogThreshold,
		GraphConfig: graph.Config{
			SimilarityThreshold:  s.defaults.Graph.SimilarityThreshold,
			CorrelationThreshold: s.defaults.Graph.CorrelationThreshold,
			MaxEdgesPerNode:      s.defaults.Graph.MaxEdgesPerNode,
			BoostWeight:          s.defaults.Graph.GraphBoostWeight,
		},
		Logger: s.logger,
	}

	if p.StoragePath != "" {
		cfg.StoragePath = p.StoragePath
	}
	if p.DuplicateThreshold != nil {
		cfg.DuplicateThreshold = *p.DuplicateThreshold
	}
	if p.DuplicateBehavior != "" {
		cfg.DuplicateBehavior = store.ParseDuplicateBehavior(p.DuplicateBehavior)
	}
	if p.MaxRegexPatternLength != nil {
		cfg.MaxRegexPatternLength = *p.MaxRegexPatternLength
	}
	if p.LearningEnabled != nil {
		cfg.LearningEnabled = *p.LearningEnabled
	}
	if p.RecencyHalfLifeMs != nil {
		cfg.RecencyHalfLifeMs = *p.RecencyHalfLifeMs
	}
	if p.TopicCatalogThreshold != nil {
		cfg.TopicCatalogThreshold = *p.TopicCatalogThreshold
	}

	st := store.New(cfg)
	if err := st.Initialize(cfg.StoragePath); err != nil {
		return nil, rpcError(err)
	}
	s.store = st
	s.logger.Info("store initialized",
		zap.String("storagePath", cfg.StoragePath),
		zap.Bool("learning", cfg.LearningEnabled))

	return map[string]any{}, nil
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

func (s *Server) handleAdd(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[addParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		id, err := st.Add(p.Text, p.Embedding, p.Metadata)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
}

func (s *Server) handleAddBatch(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[addBatchParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		ids, err := st.AddBatch(p.Entries)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ids": nonNil(ids)}, nil
	})
}

func (s *Server) handleDelete(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[idParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"deleted": st.Delete(p.ID)}, nil
	})
}

func (s *Server) handleDeleteBatch(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[idsParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"count": st.DeleteBatch(p.IDs)}, nil
	})
}

func (s *Server) handleGetByID(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[idParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		if vol, ok := st.GetByID(p.ID); ok {
			return map[string]any{"volume": vol}, nil
		}
		return map[string]any{"volume": nil}, nil
	})
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func (s *Server) handleSearch(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[searchParams](req)
	if perr != nil {
		return nil, perr
	}
	maxResults := 10
	if p.MaxResults != nil {
		maxResults = *p.MaxResults
	}
	threshold := 0.0
	if p.Threshold != nil {
		threshold = *p.Threshold
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		results, err := st.Search(p.QueryEmbedding, maxResults, threshold)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": nonNil(results)}, nil
	})
}

func (s *Server) handleTextSearch(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[core.TextSearchOptions](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		results, err := st.TextSearch(p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": nonNil(results)}, nil
	})
}

func (s *Server) handleAdvancedSearch(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[core.SearchOptions](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		results, err := st.AdvancedSearch(p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": nonNil(results)}, nil
	})
}

func (s *Server) handleFilterByMetadata(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[filterByMetadataParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"volumes": nonNil(st.FilterByMetadata(p.Filters))}, nil
	})
}

func (s *Server) handleFilterByDateRange(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[core.DateRange](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"volumes": nonNil(st.FilterByDateRange(p))}, nil
	})
}

func (s *Server) handleFilterByTopic(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[filterByTopicParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"volumes": nonNil(st.FilterByTopic(p.Topics))}, nil
	})
}

// ---------------------------------------------------------------------------
// Recommendation / deduplication
// ---------------------------------------------------------------------------

func (s *Server) handleRecommend(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[core.RecommendOptions](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		results, err := st.Recommend(p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": nonNil(results)}, nil
	})
}

func (s *Server) handleCheckDuplicate(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[checkDuplicateParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return st.CheckDuplicate(p.Embedding), nil
	})
}

func (s *Server) handleFindDuplicates(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[findDuplicatesParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"groups": nonNil(st.FindDuplicates(p.Threshold))}, nil
	})
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func (s *Server) handleCatalogResolve(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[catalogResolveParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"resolved": st.CatalogResolve(p.Topic)}, nil
	})
}

func (s *Server) handleCatalogRelocate(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[catalogRelocateParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		st.CatalogRelocate(p.VolumeID, p.NewTopic)
		return map[string]any{}, nil
	})
}

func (s *Server) handleCatalogMerge(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[catalogMergeParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		st.CatalogMerge(p.Source, p.Target)
		return map[string]any{}, nil
	})
}

func (s *Server) handleCatalogVolumes(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[catalogResolveParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		return map[string]any{"volumeIds": nonNil(st.CatalogVolumes(p.Topic))}, nil
	})
}

// ---------------------------------------------------------------------------
// Learning
// ---------------------------------------------------------------------------

func (s *Server) handleRecordQuery(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[recordQueryParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		st.RecordQuery(p.Embedding, p.SelectedIDs)
		return map[string]any{}, nil
	})
}

func (s *Server) handleRecordFeedback(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[recordFeedbackParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		st.RecordFeedback(p.EntryID, p.Relevant)
		return map[string]any{}, nil
	})
}

func (s *Server) handleCorrelated(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[idParams](req)
	if perr != nil {
		return nil, perr
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		correlated := st.GetCorrelatedEntries(p.ID)
		if correlated == nil {
			correlated = []learning.CorrelatedEntry{}
		}
		return map[string]any{"correlated": correlated}, nil
	})
}

// ---------------------------------------------------------------------------
// Query DSL / memory context
// ---------------------------------------------------------------------------

func (s *Server) handleQueryParse(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[queryParseParams](req)
	if perr != nil {
		return nil, perr
	}
	return core.ParseQuery(p.DSL), nil
}

func (s *Server) handleMemoryContext(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[memoryContextParams](req)
	if perr != nil {
		return nil, perr
	}

	lookups := make([]core.Lookup, 0, len(p.Lookups))
	for _, l := range p.Lookups {
		lookups = append(lookups, core.Lookup{Volume: l.Volume, Score: l.Score})
	}

	var options core.MemoryContextOptions
	if p.Options != nil {
		options = core.MemoryContextOptions{
			MaxResults: p.Options.MaxResults,
			MinScore:   p.Options.MinScore,
			Format:     p.Options.Format,
			Tag:        p.Options.Tag,
			MaxChars:   p.Options.MaxChars,
		}
	}

	now := uint64(time.Now().UnixMilli())
	return map[string]any{"text": core.FormatMemoryContext(lookups, options, now)}, nil
}

// ---------------------------------------------------------------------------
// Graph
// ---------------------------------------------------------------------------

func parseEdgeTypes(raw []string) []graph.EdgeType {
	if raw == nil {
		return nil
	}
	types := make([]graph.EdgeType, 0, len(raw))
	for _, name := range raw {
		if t, ok := graph.ParseEdgeType(name); ok {
			types = append(types, t)
		}
	}
	return types
}

func (s *Server) handleGraphNeighbors(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[graphNeighborsParams](req)
	if perr != nil {
		return nil, perr
	}
	maxResults := 20
	if p.MaxResults != nil {
		maxResults = *p.MaxResults
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		results := st.GraphNeighbors(p.ID, parseEdgeTypes(p.EdgeTypes), maxResults)
		neighbors := make([]map[string]any, 0, len(results))
		for _, r := range results {
			neighbors = append(neighbors, map[string]any{
				"volume": r.Volume,
				"edge": map[string]any{
					"edgeType": r.Edge.EdgeType,
					"weight":   r.Edge.Weight,
					"origin":   r.Edge.Origin,
				},
			})
		}
		return map[string]any{"neighbors": neighbors}, nil
	})
}

func (s *Server) handleGraphTraverse(req *jsonrpc2.Request) (interface{}, error) {
	p, perr := parseParams[graphTraverseParams](req)
	if perr != nil {
		return nil, perr
	}
	depth := 1
	if p.Depth != nil {
		depth = *p.Depth
	}
	// Traversal fans out fast; two hops is the ceiling.
	if depth > 2 {
		depth = 2
	}
	maxResults := 50
	if p.MaxResults != nil {
		maxResults = *p.MaxResults
	}
	return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
		results := st.GraphTraverse(p.ID, depth, parseEdgeTypes(p.EdgeTypes), maxResults)
		nodes := make([]map[string]any, 0, len(results))
		for _, r := range results {
			nodes = append(nodes, map[string]any{
				"volume": r.Volume,
				"depth":  r.Node.Depth,
				"path":   r.Node.Path,
			})
		}
		return map[string]any{"nodes": nodes}, nil
	})
}

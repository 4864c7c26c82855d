// Package store composes the simse engine packages -- core indexes, the
// typed-edge graph, and the adaptive learning engine -- into the stateful
// VolumeStore that backs the vector memory RPC surface.
//
// The store is single-writer and cooperative: the surrounding dispatcher
// serializes requests end-to-end, so operations run to completion without
// internal locking.
package store

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shmor3/simse/pkg/core"
	"github.com/shmor3/simse/pkg/graph"
	"github.com/shmor3/simse/pkg/learning"
)

// DuplicateBehavior controls how duplicate volumes are handled during add.
type DuplicateBehavior string

// Duplicate behaviors.
const (
	// DuplicateSkip silently returns the existing volume's ID.
	DuplicateSkip DuplicateBehavior = "skip"
	// DuplicateWarn logs a warning and returns the existing ID.
	DuplicateWarn DuplicateBehavior = "warn"
	// DuplicateError fails the add with a DuplicateError.
	DuplicateError DuplicateBehavior = "error"
)

// ParseDuplicateBehavior maps a wire name to a behavior, defaulting to skip.
func ParseDuplicateBehavior(s string) DuplicateBehavior {
	switch DuplicateBehavior(s) {
	case DuplicateWarn:
		return DuplicateWarn
	case DuplicateError:
		return DuplicateError
	default:
		return DuplicateSkip
	}
}

// Config holds the VolumeStore configuration.
type Config struct {
	StoragePath           string
	DuplicateThreshold    float64
	DuplicateBehavior     DuplicateBehavior
	MaxRegexPatternLength int
	LearningEnabled       bool
	LearningOptions       learning.Options
	RecencyHalfLifeMs     float64
	TopicCatalogThreshold float64
	GraphConfig           graph.Config
	// Logger receives duplicate warnings and load diagnostics. Defaults to a
	// no-op logger.
	Logger *zap.Logger
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		DuplicateThreshold:    0.95,
		DuplicateBehavior:     DuplicateSkip,
		MaxRegexPatternLength: 500,
		LearningEnabled:       false,
		LearningOptions:       learning.DefaultOptions(),
		RecencyHalfLifeMs:     core.DefaultRecencyHalfLifeMs,
		TopicCatalogThreshold: 0.85,
		GraphConfig:           graph.DefaultConfig(),
	}
}

// VolumeStore is the central stateful store for volumes.
type VolumeStore struct {
	volumes        []core.Volume
	topicIndex     *core.TopicIndex
	metadataIndex  *core.MetadataIndex
	magnitudeCache *core.MagnitudeCache
	invertedIndex  *core.InvertedIndex
	topicCatalog   *core.TopicCatalog
	graphIndex     *graph.Index
	learningEngine *learning.Engine
	textCache      *core.TextCache
	accessStats    map[string]core.AccessStats
	config         Config
	logger         *zap.Logger
	initialized    bool
	dirty          bool
}

// New creates a VolumeStore with empty state. The store rejects operations
// until Initialize runs.
func New(config Config) *VolumeStore {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var engine *learning.Engine
	if config.LearningEnabled {
		engine = learning.NewEngine(config.LearningOptions)
	}

	return &VolumeStore{
		topicIndex:     core.NewTopicIndex(5, nil),
		metadataIndex:  core.NewMetadataIndex(),
		magnitudeCache: core.NewMagnitudeCache(),
		invertedIndex:  core.NewInvertedIndex(),
		topicCatalog:   core.NewTopicCatalog(config.TopicCatalogThreshold),
		graphIndex:     graph.NewIndex(config.GraphConfig),
		learningEngine: engine,
		textCache:      core.NewDefaultTextCache(),
		accessStats:    make(map[string]core.AccessStats),
		config:         config,
		logger:         logger,
	}
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Initialize hydrates the store. When a storage path is given (here or in
// the config), persisted data is loaded, the learning and graph states are
// restored (failures start them empty), all indexes rebuild from the loaded
// volumes, implicit similarity edges rebuild pairwise, and correlation edges
// resync from the restored learning state.
func (s *VolumeStore) Initialize(storagePath string) error {
	effectivePath := storagePath
	if effectivePath == "" {
		effectivePath = s.config.StoragePath
	}

	if effectivePath != "" {
		s.config.StoragePath = effectivePath

		data, err := core.LoadFromDirectory(effectivePath)
		if err != nil {
			return err
		}
		if data.Skipped > 0 {
			s.logger.Warn("skipped corrupt records during load",
				zap.String("path", effectivePath),
				zap.Int("skipped", data.Skipped))
		}

		s.volumes = data.Entries
		s.accessStats = data.AccessStats

		if s.learningEngine != nil && len(data.LearningState) > 0 {
			var state learning.State
			if err := json.Unmarshal(data.LearningState, &state); err == nil {
				s.learningEngine.Restore(state)
			} else {
				s.logger.Warn("discarding unreadable learning state", zap.Error(err))
			}
		}

		if len(data.GraphState) > 0 {
			var state graph.State
			if err := json.Unmarshal(data.GraphState, &state); err == nil {
				s.graphIndex = graph.FromState(state, s.config.GraphConfig)
			} else {
				s.logger.Warn("discarding unreadable graph state", zap.Error(err))
			}
		}
	}

	s.rebuildIndexes()

	// Rebuild implicit similarity edges pairwise.
	for i := 0; i < len(s.volumes); i++ {
		for j := i + 1; j < len(s.volumes); j++ {
			sim := core.CosineSimilarity(s.volumes[i].Embedding, s.volumes[j].Embedding)
			ts := s.volumes[i].Timestamp
			if s.volumes[j].Timestamp > ts {
				ts = s.volumes[j].Timestamp
			}
			s.graphIndex.AddSimilarityEdge(s.volumes[i].ID, s.volumes[j].ID, sim, ts)
		}
	}
	s.SyncCorrelationEdges()

	s.initialized = true
	s.dirty = false
	return nil
}

// Dispose saves pending changes and releases caches.
func (s *VolumeStore) Dispose() error {
	if s.dirty {
		if err := s.Save(); err != nil {
			return err
		}
	}
	s.textCache = nil
	return nil
}

// Save serializes and writes all data to disk. A store without a storage
// path saves nothing. The learning state is persisted only once queries have
// been recorded; the graph state only once explicit edges exist.
func (s *VolumeStore) Save() error {
	if s.config.StoragePath == "" {
		return nil
	}

	var learningState json.RawMessage
	if s.learningEngine != nil && s.learningEngine.HasData() {
		if payload, err := json.Marshal(s.learningEngine.Serialize()); err == nil {
			learningState = payload
		}
	}

	var graphState json.RawMessage
	if serialized := s.graphIndex.Serialize(); len(serialized.ExplicitEdges) > 0 {
		if payload, err := json.Marshal(serialized); err == nil {
			graphState = payload
		}
	}

	if err := core.SaveToDirectory(s.config.StoragePath, s.volumes, s.accessStats, learningState, graphState); err != nil {
		return err
	}

	s.dirty = false
	return nil
}

// ---------------------------------------------------------------------------
// Index management
// ---------------------------------------------------------------------------

func (s *VolumeStore) indexVolume(vol *core.Volume) {
	s.topicIndex.AddEntry(vol.ID, vol.Text, vol.Metadata)
	s.metadataIndex.AddEntry(vol.ID, vol.Metadata)
	s.magnitudeCache.Set(vol.ID, vol.Embedding)
	s.invertedIndex.AddEntry(vol.ID, vol.Text)

	if topic, ok := vol.Metadata["topic"]; ok {
		s.topicCatalog.RegisterVolume(vol.ID, topic)
	}
	if s.textCache != nil {
		s.textCache.Put(vol.ID, vol.Text)
	}
}

func (s *VolumeStore) deindexVolume(vol *core.Volume) {
	s.topicIndex.RemoveEntry(vol.ID)
	s.metadataIndex.RemoveEntry(vol.ID, vol.Metadata)
	s.magnitudeCache.Remove(vol.ID)
	s.invertedIndex.RemoveEntry(vol.ID, vol.Text)
	s.topicCatalog.RemoveVolume(vol.ID)

	if s.textCache != nil {
		s.textCache.Remove(vol.ID)
	}
}

func (s *VolumeStore) rebuildIndexes() {
	s.topicIndex.Clear()
	s.metadataIndex.Clear()
	s.magnitudeCache.Clear()
	s.invertedIndex.Clear()

	for i := range s.volumes {
		s.indexVolume(&s.volumes[i])
	}
}

// ---------------------------------------------------------------------------
// Access tracking
// ---------------------------------------------------------------------------

func (s *VolumeStore) trackAccess(id string) {
	now := nowMillis()
	stats := s.accessStats[id]
	stats.AccessCount++
	stats.LastAccessed = now
	s.accessStats[id] = stats
}

// ---------------------------------------------------------------------------
// Fast cosine
// ---------------------------------------------------------------------------

// fastCosine scores one volume against the query using the magnitude cache.
// Returns false for dimension mismatches, zero-magnitude entries, or
// non-finite quotients.
func (s *VolumeStore) fastCosine(queryEmbedding []float32, queryMag float64, vol *core.Volume) (float64, bool) {
	if len(vol.Embedding) != len(queryEmbedding) {
		return 0, false
	}
	entryMag, ok := s.magnitudeCache.Get(vol.ID)
	if !ok {
		entryMag = core.Magnitude(vol.Embedding)
	}
	if entryMag == 0 {
		return 0, false
	}
	var dot float64
	for i := range queryEmbedding {
		dot += float64(queryEmbedding[i]) * float64(vol.Embedding[i])
	}
	raw := dot / (queryMag * entryMag)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, false
	}
	if raw < -1 {
		raw = -1
	} else if raw > 1 {
		raw = 1
	}
	return raw, true
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

// Add inserts a single volume and returns its generated UUID. Empty text or
// embeddings are rejected. With a duplicate threshold below 1.0 the new
// embedding is checked against existing volumes first: behaviors skip and
// warn return the existing ID without mutation, error fails the add.
func (s *VolumeStore) Add(text string, embedding []float32, metadata map[string]string) (string, error) {
	if !s.initialized {
		return "", core.ErrNotInitialized
	}
	if text == "" {
		return "", core.ErrEmptyText
	}
	if len(embedding) == 0 {
		return "", core.ErrEmptyEmbedding
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	if s.config.DuplicateThreshold < 1.0 {
		dup := core.CheckDuplicate(embedding, s.volumes, s.config.DuplicateThreshold)
		if dup.IsDuplicate {
			switch s.config.DuplicateBehavior {
			case DuplicateError:
				similarity := 1.0
				if dup.Similarity != nil {
					similarity = *dup.Similarity
				}
				return "", &core.DuplicateError{Similarity: similarity}
			case DuplicateWarn:
				s.logger.Warn("skipping duplicate volume",
					zap.String("existingId", dup.ExistingVolume.ID),
					zap.Float64p("similarity", dup.Similarity))
				return dup.ExistingVolume.ID, nil
			default:
				return dup.ExistingVolume.ID, nil
			}
		}
	}

	id := uuid.NewString()
	now := nowMillis()

	volume := core.Volume{
		ID:        id,
		Text:      text,
		Embedding: embedding,
		Metadata:  metadata,
		Timestamp: now,
	}

	s.indexVolume(&volume)
	s.volumes = append(s.volumes, volume)

	// Wire into the graph: explicit rel:* edges first, then implicit
	// similarity edges against every existing volume.
	s.graphIndex.ParseMetadataEdges(id, metadata, now)

	newMag := core.Magnitude(embedding)
	for i := 0; i < len(s.volumes)-1; i++ {
		existing := &s.volumes[i]
		existingMag, ok := s.magnitudeCache.Get(existing.ID)
		if !ok {
			existingMag = core.Magnitude(existing.Embedding)
		}
		sim := core.CosineWithMagnitude(embedding, existing.Embedding, newMag, existingMag)
		s.graphIndex.AddSimilarityEdge(id, existing.ID, sim, now)
	}

	s.dirty = true
	return id, nil
}

// AddBatch inserts entries sequentially. The first failure aborts the batch.
func (s *VolumeStore) AddBatch(entries []core.AddEntry) ([]string, error) {
	if !s.initialized {
		return nil, core.ErrNotInitialized
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		id, err := s.Add(entry.Text, entry.Embedding, entry.Metadata)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes a volume by ID, updating every index, dropping its graph
// node, and pruning the learning engine against the surviving ids. Returns
// true when the volume existed.
func (s *VolumeStore) Delete(id string) bool {
	if !s.initialized {
		return false
	}

	pos := -1
	for i := range s.volumes {
		if s.volumes[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false
	}

	vol := s.volumes[pos]
	s.volumes = append(s.volumes[:pos], s.volumes[pos+1:]...)
	s.deindexVolume(&vol)
	delete(s.accessStats, id)
	s.graphIndex.RemoveNode(id)
	s.dirty = true

	if s.learningEngine != nil {
		validIDs := make(map[string]struct{}, len(s.volumes))
		for i := range s.volumes {
			validIDs[s.volumes[i].ID] = struct{}{}
		}
		s.learningEngine.PruneEntries(validIDs)
	}

	return true
}

// DeleteBatch removes multiple volumes, returning the count actually
// removed.
func (s *VolumeStore) DeleteBatch(ids []string) int {
	if !s.initialized {
		return 0
	}
	count := 0
	for _, id := range ids {
		if s.Delete(id) {
			count++
		}
	}
	return count
}

// Clear removes all volumes and resets every index and the learning state.
// The graph rebuilds empty with the configured thresholds.
func (s *VolumeStore) Clear() {
	s.volumes = nil
	s.topicIndex.Clear()
	s.metadataIndex.Clear()
	s.magnitudeCache.Clear()
	s.invertedIndex.Clear()
	s.topicCatalog = core.NewTopicCatalog(s.config.TopicCatalogThreshold)
	s.accessStats = make(map[string]core.AccessStats)
	s.graphIndex = graph.NewIndex(s.config.GraphConfig)

	if s.textCache != nil {
		s.textCache.Clear()
	}
	if s.learningEngine != nil {
		s.learningEngine.Clear()
	}

	s.dirty = true
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// GetByID returns a volume by ID, tracking access on a hit.
func (s *VolumeStore) GetByID(id string) (core.Volume, bool) {
	if !s.initialized {
		return core.Volume{}, false
	}
	for i := range s.volumes {
		if s.volumes[i].ID == id {
			vol := s.volumes[i]
			s.trackAccess(id)
			return vol, true
		}
	}
	return core.Volume{}, false
}

// GetAll returns copies of all volumes.
func (s *VolumeStore) GetAll() []core.Volume {
	if !s.initialized {
		return nil
	}
	return append([]core.Volume(nil), s.volumes...)
}

// GetTopics lists every topic tracked by the topic index.
func (s *VolumeStore) GetTopics() []core.TopicInfo {
	if !s.initialized {
		return nil
	}
	return s.topicIndex.GetAllTopics()
}

// Size returns the number of stored volumes.
func (s *VolumeStore) Size() int {
	return len(s.volumes)
}

// IsDirty reports whether the store has unsaved changes.
func (s *VolumeStore) IsDirty() bool {
	return s.dirty
}

// Initialized reports whether Initialize has completed.
func (s *VolumeStore) Initialized() bool {
	return s.initialized
}

// ---------------------------------------------------------------------------
// Deduplication
// ---------------------------------------------------------------------------

// CheckDuplicate reports whether an embedding would duplicate a stored
// volume at the configured threshold.
func (s *VolumeStore) CheckDuplicate(embedding []float32) core.DuplicateCheckResult {
	if !s.initialized {
		return core.DuplicateCheckResult{}
	}
	return core.CheckDuplicate(embedding, s.volumes, s.config.DuplicateThreshold)
}

// FindDuplicates clusters near-duplicate volumes. A nil threshold uses the
// configured duplicate threshold.
func (s *VolumeStore) FindDuplicates(threshold *float64) []core.DuplicateGroup {
	if !s.initialized {
		return nil
	}
	t := s.config.DuplicateThreshold
	if threshold != nil {
		t = *threshold
	}
	return core.FindDuplicateGroups(s.volumes, t)
}

// ---------------------------------------------------------------------------
// Learning delegation
// ---------------------------------------------------------------------------

// RecordQuery forwards a completed query to the learning engine and syncs
// freshly crossed co-occurrence thresholds into CoOccurs graph edges.
func (s *VolumeStore) RecordQuery(embedding []float32, selectedIDs []string) {
	if s.learningEngine != nil {
		s.learningEngine.RecordQuery(embedding, selectedIDs, "", nowMillis())
		s.SyncCorrelationEdges()
	}
}

// RecordFeedback forwards explicit relevance feedback to the learning
// engine.
func (s *VolumeStore) RecordFeedback(entryID string, relevant bool) {
	if s.learningEngine != nil {
		s.learningEngine.RecordFeedback(entryID, relevant, nowMillis())
	}
}

// GetProfile snapshots the learning profile, or returns false when learning
// is disabled.
func (s *VolumeStore) GetProfile() (core.PatronProfile, bool) {
	if s.learningEngine == nil {
		return core.PatronProfile{}, false
	}
	return s.learningEngine.GetProfile(), true
}

// GetCorrelatedEntries returns entries co-retrieved with the given entry,
// strongest first.
func (s *VolumeStore) GetCorrelatedEntries(entryID string) []learning.CorrelatedEntry {
	if s.learningEngine == nil {
		return nil
	}
	return s.learningEngine.GetCorrelatedEntries(entryID)
}

// SyncCorrelationEdges folds the learning engine's co-occurrence counts into
// CoOccurs graph edges.
func (s *VolumeStore) SyncCorrelationEdges() {
	if s.learningEngine == nil {
		return
	}
	s.graphIndex.SyncCorrelations(s.learningEngine.Correlations(), s.learningEngine.MaxCorrelationCount(), nowMillis())
}

// ---------------------------------------------------------------------------
// Topic catalog delegation
// ---------------------------------------------------------------------------

// CatalogResolve resolves a proposed topic to its canonical name.
func (s *VolumeStore) CatalogResolve(topic string) string {
	return s.topicCatalog.Resolve(topic)
}

// CatalogRelocate moves a volume to a new catalog topic.
func (s *VolumeStore) CatalogRelocate(volumeID, newTopic string) {
	s.topicCatalog.Relocate(volumeID, newTopic)
}

// CatalogMerge merges one catalog topic into another.
func (s *VolumeStore) CatalogMerge(source, target string) {
	s.topicCatalog.Merge(source, target)
}

// CatalogSections lists all topic catalog sections.
func (s *VolumeStore) CatalogSections() []core.CatalogSection {
	return s.topicCatalog.Sections()
}

// CatalogVolumes returns the volume IDs filed under a catalog topic.
func (s *VolumeStore) CatalogVolumes(topic string) []string {
	return s.topicCatalog.Volumes(topic)
}

// ---------------------------------------------------------------------------
// Graph delegation
// ---------------------------------------------------------------------------

// GraphNeighbor joins an edge with its target volume when the target still
// exists in the store.
type GraphNeighbor struct {
	Edge   graph.Edge
	Volume *core.Volume
}

// GraphNeighbors returns the strongest outgoing edges from a volume,
// optionally restricted by edge type, each joined with its target volume.
func (s *VolumeStore) GraphNeighbors(id string, edgeTypes []graph.EdgeType, maxResults int) []GraphNeighbor {
	var edges []graph.Edge
	if edgeTypes != nil {
		edges = s.graphIndex.NeighborsByType(id, edgeTypes)
	} else {
		edges = s.graphIndex.Neighbors(id)
	}
	if len(edges) > maxResults {
		edges = edges[:maxResults]
	}

	results := make([]GraphNeighbor, 0, len(edges))
	for _, edge := range edges {
		results = append(results, GraphNeighbor{Edge: edge, Volume: s.findVolume(edge.TargetID)})
	}
	return results
}

// GraphTraversalResult joins a traversal node with its volume when present.
type GraphTraversalResult struct {
	Node   graph.TraversalNode
	Volume *core.Volume
}

// GraphTraverse walks the graph breadth-first from a volume.
func (s *VolumeStore) GraphTraverse(id string, depth int, edgeTypes []graph.EdgeType, maxResults int) []GraphTraversalResult {
	nodes := s.graphIndex.Traverse(id, depth, edgeTypes, maxResults)
	results := make([]GraphTraversalResult, 0, len(nodes))
	for _, node := range nodes {
		results = append(results, GraphTraversalResult{Node: node, Volume: s.findVolume(node.NodeID)})
	}
	return results
}

// GraphIndex exposes the underlying graph index.
func (s *VolumeStore) GraphIndex() *graph.Index {
	return s.graphIndex
}

func (s *VolumeStore) findVolume(id string) *core.Volume {
	for i := range s.volumes {
		if s.volumes[i].ID == id {
			vol := s.volumes[i]
			return &vol
		}
	}
	return nil
}

package core

import (
	"encoding/json"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Topic extraction
// ---------------------------------------------------------------------------

// defaultStopWords is the built-in English stop-word set used during topic
// auto-extraction.
var defaultStopWords = func() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "do", "for", "from", "had",
		"has", "have", "he", "her", "his", "how", "i", "if", "in", "into", "is", "it", "its",
		"my", "no", "not", "of", "on", "or", "our", "she", "so", "that", "the", "their", "them",
		"then", "there", "these", "they", "this", "to", "was", "we", "were", "what", "when",
		"which", "who", "will", "with", "you", "your",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// parentPath returns the parent of a hierarchical topic ("code/rust" ->
// "code"), or "" for root-level topics.
func parentPath(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 {
		return ""
	}
	return topic[:idx]
}

// coOccurrenceKey builds an order-independent pair key.
func coOccurrenceKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}

// extractTopicsFromText extracts topics by word frequency: lowercase, strip
// non-alphanumerics, keep words longer than two characters that are not stop
// words, sort by frequency descending then alphabetically, take the top N.
func extractTopicsFromText(text string, stopWords map[string]struct{}, maxTopics int) []string {
	freq := make(map[string]int)
	for _, word := range Tokenize(text) {
		if len(word) <= 2 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		freq[word]++
	}

	type entry struct {
		word  string
		count int
	}
	entries := make([]entry, 0, len(freq))
	for w, c := range freq {
		entries = append(entries, entry{w, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].word < entries[j].word
	})
	if len(entries) > maxTopics {
		entries = entries[:maxTopics]
	}

	topics := make([]string, len(entries))
	for i, e := range entries {
		topics[i] = e.word
	}
	return topics
}

// resolveTopics determines an entry's topics, in priority order:
//  1. metadata["topics"] as a JSON string array
//  2. metadata["topic"] split on commas
//  3. auto-extraction from text
func resolveTopics(text string, metadata map[string]string, stopWords map[string]struct{}, maxTopics int) []string {
	if topicsJSON, ok := metadata["topics"]; ok {
		var parsed []string
		if err := json.Unmarshal([]byte(topicsJSON), &parsed); err == nil {
			topics := make([]string, 0, len(parsed))
			for _, t := range parsed {
				t = strings.ToLower(strings.TrimSpace(t))
				if t != "" {
					topics = append(topics, t)
				}
			}
			if len(topics) > 0 {
				return topics
			}
		}
	}

	if topic, ok := metadata["topic"]; ok {
		var topics []string
		for _, t := range strings.Split(topic, ",") {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				topics = append(topics, t)
			}
		}
		if len(topics) > 0 {
			return topics
		}
	}

	return extractTopicsFromText(text, stopWords, maxTopics)
}

// ---------------------------------------------------------------------------
// TopicIndex
// ---------------------------------------------------------------------------

// TopicIndex tracks topics associated with entries. Topics are hierarchical:
// "code/rust" is a child of "code", and ancestor topics exist whenever any
// descendant does.
type TopicIndex struct {
	// topic -> direct entry IDs
	topicToEntries map[string]map[string]struct{}
	// entry ID -> topic paths
	entryToTopics map[string][]string
	// topic -> direct child topics
	topicToChildren map[string]map[string]struct{}
	// pair key -> count
	coOccurrence map[string]int
	// words ignored during auto-extraction
	stopWords map[string]struct{}
	// max auto-extracted topics per entry
	maxTopicsPerEntry int
}

// NewTopicIndex creates a TopicIndex. maxTopics bounds auto-extracted topics
// per entry (5 in the store); extraStopWords extend the built-in set.
func NewTopicIndex(maxTopics int, extraStopWords []string) *TopicIndex {
	stopWords := make(map[string]struct{}, len(defaultStopWords)+len(extraStopWords))
	for w := range defaultStopWords {
		stopWords[w] = struct{}{}
	}
	for _, w := range extraStopWords {
		stopWords[strings.ToLower(w)] = struct{}{}
	}
	return &TopicIndex{
		topicToEntries:    make(map[string]map[string]struct{}),
		entryToTopics:     make(map[string][]string),
		topicToChildren:   make(map[string]map[string]struct{}),
		coOccurrence:      make(map[string]int),
		stopWords:         stopWords,
		maxTopicsPerEntry: maxTopics,
	}
}

// ensureTopicExists creates a topic node and all its ancestors.
func (ti *TopicIndex) ensureTopicExists(topic string) {
	if _, ok := ti.topicToEntries[topic]; !ok {
		ti.topicToEntries[topic] = make(map[string]struct{})
	}
	parent := parentPath(topic)
	if parent == "" {
		return
	}
	ti.ensureTopicExists(parent)
	children, ok := ti.topicToChildren[parent]
	if !ok {
		children = make(map[string]struct{})
		ti.topicToChildren[parent] = children
	}
	children[topic] = struct{}{}
}

// cleanupTopic drops a topic node that has no direct entries and no
// children, bubbling up through its ancestors.
func (ti *TopicIndex) cleanupTopic(topic string) {
	entries, tracked := ti.topicToEntries[topic]
	hasEntries := !tracked || len(entries) > 0
	hasChildren := len(ti.topicToChildren[topic]) > 0
	if hasEntries || hasChildren {
		return
	}

	delete(ti.topicToEntries, topic)
	delete(ti.topicToChildren, topic)
	if parent := parentPath(topic); parent != "" {
		if children, ok := ti.topicToChildren[parent]; ok {
			delete(children, topic)
		}
		ti.cleanupTopic(parent)
	}
}

func (ti *TopicIndex) incrementCoOccurrence(topics []string) {
	for i := 0; i < len(topics); i++ {
		for j := i + 1; j < len(topics); j++ {
			ti.coOccurrence[coOccurrenceKey(topics[i], topics[j])]++
		}
	}
}

func (ti *TopicIndex) decrementCoOccurrence(topics []string) {
	for i := 0; i < len(topics); i++ {
		for j := i + 1; j < len(topics); j++ {
			key := coOccurrenceKey(topics[i], topics[j])
			if current, ok := ti.coOccurrence[key]; ok {
				if current <= 1 {
					delete(ti.coOccurrence, key)
				} else {
					ti.coOccurrence[key] = current - 1
				}
			}
		}
	}
}

// collectDescendantEntries gathers entry IDs for a topic and all descendants.
func (ti *TopicIndex) collectDescendantEntries(topic string, into map[string]struct{}) {
	for id := range ti.topicToEntries[topic] {
		into[id] = struct{}{}
	}
	for child := range ti.topicToChildren[topic] {
		ti.collectDescendantEntries(child, into)
	}
}

// AddEntry indexes an entry, resolving topics from metadata and text. An
// already-indexed entry is removed first (re-indexing).
func (ti *TopicIndex) AddEntry(id, text string, metadata map[string]string) {
	ti.RemoveEntry(id)

	topics := resolveTopics(text, metadata, ti.stopWords, ti.maxTopicsPerEntry)
	ti.entryToTopics[id] = topics

	for _, topic := range topics {
		ti.ensureTopicExists(topic)
		ti.topicToEntries[topic][id] = struct{}{}
	}

	if len(topics) > 1 {
		ti.incrementCoOccurrence(topics)
	}
}

// RemoveEntry de-indexes an entry and cleans up empty topics.
func (ti *TopicIndex) RemoveEntry(id string) {
	topics, ok := ti.entryToTopics[id]
	if !ok {
		return
	}
	delete(ti.entryToTopics, id)

	if len(topics) > 1 {
		ti.decrementCoOccurrence(topics)
	}

	for _, topic := range topics {
		if set, ok := ti.topicToEntries[topic]; ok {
			delete(set, id)
		}
		ti.cleanupTopic(topic)
	}
}

// GetEntries returns all entry IDs under a topic and its descendants. The
// input is case-insensitive.
func (ti *TopicIndex) GetEntries(topic string) []string {
	set := make(map[string]struct{})
	ti.collectDescendantEntries(strings.ToLower(topic), set)
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// GetAllTopics lists every known topic with hierarchy info.
func (ti *TopicIndex) GetAllTopics() []TopicInfo {
	result := make([]TopicInfo, 0, len(ti.topicToEntries))
	for topic, entries := range ti.topicToEntries {
		children := make([]string, 0, len(ti.topicToChildren[topic]))
		for child := range ti.topicToChildren[topic] {
			children = append(children, child)
		}
		sort.Strings(children)

		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		info := TopicInfo{
			Topic:      topic,
			EntryCount: len(entries),
			EntryIDs:   ids,
			Children:   children,
		}
		if parent := parentPath(topic); parent != "" {
			info.Parent = &parent
		}
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Topic < result[j].Topic })
	return result
}

// GetTopics returns the topics of a specific entry.
func (ti *TopicIndex) GetTopics(id string) []string {
	return ti.entryToTopics[id]
}

// RelatedTopic is a co-occurring topic with its shared-entry count.
type RelatedTopic struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// GetRelatedTopics returns topics that co-occur with the given topic, sorted
// by count descending.
func (ti *TopicIndex) GetRelatedTopics(topic string) []RelatedTopic {
	normalized := strings.ToLower(topic)
	related := make(map[string]int)
	for key, count := range ti.coOccurrence {
		parts := strings.SplitN(key, "\x00", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] == normalized {
			related[parts[1]] += count
		} else if parts[1] == normalized {
			related[parts[0]] += count
		}
	}

	result := make([]RelatedTopic, 0, len(related))
	for t, c := range related {
		result = append(result, RelatedTopic{Topic: t, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Topic < result[j].Topic
	})
	return result
}

// MergeTopic moves all entries from one topic to another, rewriting
// per-entry topic lists and re-keying co-occurrence counters, summing on
// collisions.
func (ti *TopicIndex) MergeTopic(from, to string) {
	fromNorm := strings.ToLower(from)
	toNorm := strings.ToLower(to)

	entries, ok := ti.topicToEntries[fromNorm]
	if !ok || len(entries) == 0 {
		return
	}
	fromIDs := make([]string, 0, len(entries))
	for id := range entries {
		fromIDs = append(fromIDs, id)
	}
	sort.Strings(fromIDs)

	ti.ensureTopicExists(toNorm)

	for _, id := range fromIDs {
		ti.topicToEntries[toNorm][id] = struct{}{}

		oldTopics, ok := ti.entryToTopics[id]
		if !ok {
			continue
		}
		if len(oldTopics) > 1 {
			ti.decrementCoOccurrence(oldTopics)
		}

		newTopics := append([]string(nil), oldTopics...)
		for idx, t := range newTopics {
			if t != fromNorm {
				continue
			}
			if containsString(newTopics, toNorm) {
				newTopics = append(newTopics[:idx], newTopics[idx+1:]...)
			} else {
				newTopics[idx] = toNorm
			}
			break
		}

		if len(newTopics) > 1 {
			ti.incrementCoOccurrence(newTopics)
		}
		ti.entryToTopics[id] = newTopics
	}

	for id := range ti.topicToEntries[fromNorm] {
		delete(ti.topicToEntries[fromNorm], id)
	}
	ti.cleanupTopic(fromNorm)

	// Re-key co-occurrence counters that mention the source topic.
	var staleKeys []string
	updates := make(map[string]int)
	for key, count := range ti.coOccurrence {
		parts := strings.SplitN(key, "\x00", 2)
		if len(parts) != 2 || (parts[0] != fromNorm && parts[1] != fromNorm) {
			continue
		}
		staleKeys = append(staleKeys, key)
		other := parts[0]
		if other == fromNorm {
			other = parts[1]
		}
		if other == toNorm {
			continue
		}
		newKey := coOccurrenceKey(toNorm, other)
		existing, ok := updates[newKey]
		if !ok {
			existing = ti.coOccurrence[newKey]
		}
		updates[newKey] = existing + count
	}
	for _, key := range staleKeys {
		delete(ti.coOccurrence, key)
	}
	for key, count := range updates {
		ti.coOccurrence[key] = count
	}
}

// GetChildren returns direct child topic paths (not grandchildren).
func (ti *TopicIndex) GetChildren(topic string) []string {
	children := ti.topicToChildren[strings.ToLower(topic)]
	out := make([]string, 0, len(children))
	for child := range children {
		out = append(out, child)
	}
	sort.Strings(out)
	return out
}

// Clear removes all entries and topics.
func (ti *TopicIndex) Clear() {
	ti.topicToEntries = make(map[string]map[string]struct{})
	ti.entryToTopics = make(map[string][]string)
	ti.topicToChildren = make(map[string]map[string]struct{})
	ti.coOccurrence = make(map[string]int)
}

// TopicCount returns the number of distinct topics tracked.
func (ti *TopicIndex) TopicCount() int {
	return len(ti.topicToEntries)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// MetadataIndex
// ---------------------------------------------------------------------------

// MetadataIndex provides O(1) lookups of entry IDs by exact (key, value)
// pair or by key presence. Empty sets are pruned.
type MetadataIndex struct {
	// "key\x00value" -> entry IDs
	kvIndex map[string]map[string]struct{}
	// key -> entry IDs
	keyIndex map[string]map[string]struct{}
}

// NewMetadataIndex creates an empty metadata index.
func NewMetadataIndex() *MetadataIndex {
	return &MetadataIndex{
		kvIndex:  make(map[string]map[string]struct{}),
		keyIndex: make(map[string]map[string]struct{}),
	}
}

func kvKey(key, value string) string {
	return key + "\x00" + value
}

// AddEntry indexes an entry's metadata.
func (mi *MetadataIndex) AddEntry(id string, metadata map[string]string) {
	for key, value := range metadata {
		composite := kvKey(key, value)
		set, ok := mi.kvIndex[composite]
		if !ok {
			set = make(map[string]struct{})
			mi.kvIndex[composite] = set
		}
		set[id] = struct{}{}

		keySet, ok := mi.keyIndex[key]
		if !ok {
			keySet = make(map[string]struct{})
			mi.keyIndex[key] = keySet
		}
		keySet[id] = struct{}{}
	}
}

// RemoveEntry de-indexes an entry's metadata.
func (mi *MetadataIndex) RemoveEntry(id string, metadata map[string]string) {
	for key, value := range metadata {
		composite := kvKey(key, value)
		if set, ok := mi.kvIndex[composite]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(mi.kvIndex, composite)
			}
		}
		if keySet, ok := mi.keyIndex[key]; ok {
			delete(keySet, id)
			if len(keySet) == 0 {
				delete(mi.keyIndex, key)
			}
		}
	}
}

// GetEntries returns the IDs matching an exact key-value pair.
func (mi *MetadataIndex) GetEntries(key, value string) map[string]struct{} {
	set := mi.kvIndex[kvKey(key, value)]
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

// GetEntriesWithKey returns the IDs having a specific metadata key.
func (mi *MetadataIndex) GetEntriesWithKey(key string) map[string]struct{} {
	set := mi.keyIndex[key]
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

// Clear removes all entries.
func (mi *MetadataIndex) Clear() {
	mi.kvIndex = make(map[string]map[string]struct{})
	mi.keyIndex = make(map[string]map[string]struct{})
}

// ---------------------------------------------------------------------------
// MagnitudeCache
// ---------------------------------------------------------------------------

// MagnitudeCache caches computed L2 magnitudes keyed by entry ID.
type MagnitudeCache struct {
	cache map[string]float64
}

// NewMagnitudeCache creates an empty magnitude cache.
func NewMagnitudeCache() *MagnitudeCache {
	return &MagnitudeCache{cache: make(map[string]float64)}
}

// Get returns the cached magnitude for an entry.
func (mc *MagnitudeCache) Get(id string) (float64, bool) {
	m, ok := mc.cache[id]
	return m, ok
}

// Set computes and caches the magnitude of an entry's embedding.
func (mc *MagnitudeCache) Set(id string, embedding []float32) {
	mc.cache[id] = Magnitude(embedding)
}

// Remove drops a cached magnitude.
func (mc *MagnitudeCache) Remove(id string) {
	delete(mc.cache, id)
}

// Clear drops all cached magnitudes.
func (mc *MagnitudeCache) Clear() {
	mc.cache = make(map[string]float64)
}

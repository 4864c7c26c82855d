package core

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/shmor3/simse/internal/encoding"
)

// Special index keys for non-entry payloads.
const (
	// LearningKey holds the learning engine state as UTF-8 JSON.
	LearningKey = "__learning"
	// GraphKey holds the serialized explicit-edge graph as UTF-8 JSON.
	GraphKey = "__graph"
)

// indexFileName is the authoritative on-disk index.
const indexFileName = "index.gz"

// plainIndexFileName is the tolerated uncompressed variant.
const plainIndexFileName = "index.json"

// AccessStats tracks per-entry access counts for frequency scoring.
type AccessStats struct {
	AccessCount  uint32
	LastAccessed uint64
}

// ---------------------------------------------------------------------------
// Gzip compress / decompress
// ---------------------------------------------------------------------------

// Compress gzips data at level 6, matching the original store's default.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress gunzips data.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// IsGzipped reports whether data starts with the gzip magic bytes.
func IsGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// ---------------------------------------------------------------------------
// Per-entry binary codec
// ---------------------------------------------------------------------------

// SerializeEntry encodes a single volume to the binary entry format:
//
//	[4B text-len BE][text UTF-8]
//	[4B emb-b64-len BE][embedding base64 of Float32 LE bytes]
//	[4B meta-json-len BE][metadata JSON UTF-8]
//	[8B timestamp as two 32-bit BE halves]
//	[4B accessCount BE]
//	[8B lastAccessed as two 32-bit BE halves]
//
// The two-halves timestamp layout is mandatory for compatibility with
// indexes persisted by the original TypeScript implementation.
func SerializeEntry(volume Volume, stats *AccessStats) []byte {
	textBytes := []byte(volume.Text)
	embBytes := []byte(encoding.EncodeEmbedding(volume.Embedding))
	metadata := volume.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		metaBytes = []byte("{}")
	}

	buf := make([]byte, 0, 4+len(textBytes)+4+len(embBytes)+4+len(metaBytes)+8+4+8)

	buf = encoding.PutUint32BE(buf, uint32(len(textBytes)))
	buf = append(buf, textBytes...)

	buf = encoding.PutUint32BE(buf, uint32(len(embBytes)))
	buf = append(buf, embBytes...)

	buf = encoding.PutUint32BE(buf, uint32(len(metaBytes)))
	buf = append(buf, metaBytes...)

	buf = encoding.PutUint64Halves(buf, volume.Timestamp)

	var accessCount uint32
	var lastAccessed uint64
	if stats != nil {
		accessCount = stats.AccessCount
		lastAccessed = stats.LastAccessed
	}
	buf = encoding.PutUint32BE(buf, accessCount)
	buf = encoding.PutUint64Halves(buf, lastAccessed)

	return buf
}

// DeserializedEntry is the result of decoding one binary entry.
type DeserializedEntry struct {
	Volume       Volume
	AccessCount  uint32
	LastAccessed uint64
}

// DeserializeEntry decodes a single binary entry record.
func DeserializeEntry(id string, data []byte) (DeserializedEntry, error) {
	offset := 0

	textLen, ok := encoding.ReadUint32BE(data, offset)
	if !ok {
		return DeserializedEntry{}, corruption("truncated: text length")
	}
	offset += 4
	if offset+int(textLen) > len(data) {
		return DeserializedEntry{}, corruption("truncated: text data")
	}
	textBytes := data[offset : offset+int(textLen)]
	if !utf8.Valid(textBytes) {
		return DeserializedEntry{}, corruption("invalid UTF-8 in text")
	}
	text := string(textBytes)
	offset += int(textLen)

	embLen, ok := encoding.ReadUint32BE(data, offset)
	if !ok {
		return DeserializedEntry{}, corruption("truncated: embedding length")
	}
	offset += 4
	if offset+int(embLen) > len(data) {
		return DeserializedEntry{}, corruption("truncated: embedding data")
	}
	embedding, err := encoding.DecodeEmbedding(string(data[offset : offset+int(embLen)]))
	if err != nil {
		return DeserializedEntry{}, corruption(fmt.Sprintf("invalid embedding: %v", err))
	}
	offset += int(embLen)

	metaLen, ok := encoding.ReadUint32BE(data, offset)
	if !ok {
		return DeserializedEntry{}, corruption("truncated: metadata length")
	}
	offset += 4
	if offset+int(metaLen) > len(data) {
		return DeserializedEntry{}, corruption("truncated: metadata data")
	}
	var metadata map[string]string
	if err := json.Unmarshal(data[offset:offset+int(metaLen)], &metadata); err != nil {
		return DeserializedEntry{}, corruption(fmt.Sprintf("invalid metadata JSON: %v", err))
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	offset += int(metaLen)

	timestamp, ok := encoding.ReadUint64Halves(data, offset)
	if !ok {
		return DeserializedEntry{}, corruption("truncated: timestamp")
	}
	offset += 8

	accessCount, ok := encoding.ReadUint32BE(data, offset)
	if !ok {
		return DeserializedEntry{}, corruption("truncated: access count")
	}
	offset += 4

	lastAccessed, ok := encoding.ReadUint64Halves(data, offset)
	if !ok {
		return DeserializedEntry{}, corruption("truncated: lastAccessed")
	}

	return DeserializedEntry{
		Volume: Volume{
			ID:        id,
			Text:      text,
			Embedding: embedding,
			Metadata:  metadata,
			Timestamp: timestamp,
		},
		AccessCount:  accessCount,
		LastAccessed: lastAccessed,
	}, nil
}

// ---------------------------------------------------------------------------
// Bulk operations
// ---------------------------------------------------------------------------

// DeserializedData is the result of decoding an entire persisted store.
// LearningState and GraphState stay raw JSON here so the core codec does not
// depend on the learning and graph packages.
type DeserializedData struct {
	Entries       []Volume
	AccessStats   map[string]AccessStats
	LearningState json.RawMessage
	GraphState    json.RawMessage
	Skipped       int
}

// DeserializeFromStorage decodes raw storage data keyed by entry ID. The
// special learning and graph keys are parsed as JSON payloads; corrupt
// records of any kind are skipped and counted, never fatal.
func DeserializeFromStorage(rawData map[string][]byte) DeserializedData {
	result := DeserializedData{AccessStats: make(map[string]AccessStats)}

	for key, value := range rawData {
		switch key {
		case LearningKey:
			if json.Valid(value) {
				result.LearningState = append(json.RawMessage(nil), value...)
			} else {
				result.Skipped++
			}
			continue
		case GraphKey:
			if json.Valid(value) {
				result.GraphState = append(json.RawMessage(nil), value...)
			} else {
				result.Skipped++
			}
			continue
		}

		decoded, err := DeserializeEntry(key, value)
		if err != nil {
			result.Skipped++
			continue
		}
		if decoded.AccessCount > 0 || decoded.LastAccessed > 0 {
			result.AccessStats[decoded.Volume.ID] = AccessStats{
				AccessCount:  decoded.AccessCount,
				LastAccessed: decoded.LastAccessed,
			}
		}
		result.Entries = append(result.Entries, decoded.Volume)
	}

	return result
}

// SerializeToStorage encodes all entries plus the optional learning and
// graph payloads into raw storage form. The learning state is only written
// when it is present; callers gate it on total queries.
func SerializeToStorage(entries []Volume, accessStats map[string]AccessStats, learningState, graphState json.RawMessage) map[string][]byte {
	data := make(map[string][]byte, len(entries)+2)

	for _, entry := range entries {
		var stats *AccessStats
		if s, ok := accessStats[entry.ID]; ok {
			stats = &s
		}
		data[entry.ID] = SerializeEntry(entry, stats)
	}

	if len(learningState) > 0 {
		data[LearningKey] = append([]byte(nil), learningState...)
	}
	if len(graphState) > 0 {
		data[GraphKey] = append([]byte(nil), graphState...)
	}

	return data
}

// ---------------------------------------------------------------------------
// File I/O -- v2 gzipped index format
// ---------------------------------------------------------------------------

// indexFileV2 is the on-disk JSON shape: each entry value is the
// base64-encoded binary entry record.
type indexFileV2 struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// SaveToDirectory writes all data to <dir>/index.gz as gzipped JSON:
//
//	{ "version": 2, "entries": { "<id>": "<base64 binary entry>", ... } }
func SaveToDirectory(dir string, entries []Volume, accessStats map[string]AccessStats, learningState, graphState json.RawMessage) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapError("save", err)
	}

	storage := SerializeToStorage(entries, accessStats, learningState, graphState)
	indexEntries := make(map[string]string, len(storage))
	for key, value := range storage {
		indexEntries[key] = base64.StdEncoding.EncodeToString(value)
	}

	payload, err := json.Marshal(indexFileV2{Version: 2, Entries: indexEntries})
	if err != nil {
		return wrapError("save", fmt.Errorf("%w: index: %v", ErrSerialization, err))
	}

	compressed, err := Compress(payload)
	if err != nil {
		return wrapError("save", err)
	}

	if err := os.WriteFile(filepath.Join(dir, indexFileName), compressed, 0o644); err != nil {
		return wrapError("save", err)
	}
	return nil
}

// LoadFromDirectory reads <dir>/index.gz (or the plain index.json variant).
// A missing index yields empty data, not an error. Per-entry decode failures
// are skipped and counted.
func LoadFromDirectory(dir string) (DeserializedData, error) {
	raw, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if os.IsNotExist(err) {
		raw, err = os.ReadFile(filepath.Join(dir, plainIndexFileName))
		if os.IsNotExist(err) {
			return DeserializedData{AccessStats: make(map[string]AccessStats)}, nil
		}
	}
	if err != nil {
		return DeserializedData{}, wrapError("load", err)
	}

	payload := raw
	if IsGzipped(raw) {
		payload, err = Decompress(raw)
		if err != nil {
			return DeserializedData{}, wrapError("load", corruption(fmt.Sprintf("bad gzip stream: %v", err)))
		}
	}

	var index indexFileV2
	if err := json.Unmarshal(payload, &index); err != nil {
		return DeserializedData{}, wrapError("load", corruption(fmt.Sprintf("invalid index JSON: %v", err)))
	}
	if index.Version != 2 {
		return DeserializedData{}, wrapError("load", corruption(fmt.Sprintf("unsupported index version: %d", index.Version)))
	}

	rawData := make(map[string][]byte, len(index.Entries))
	badEntries := 0
	for key, b64 := range index.Entries {
		binary, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			badEntries++
			continue
		}
		rawData[key] = binary
	}

	data := DeserializeFromStorage(rawData)
	data.Skipped += badEntries
	return data, nil
}

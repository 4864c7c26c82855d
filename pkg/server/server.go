// Package server dispatches JSON-RPC 2.0 requests -- one object per line
// over stdio -- to a VolumeStore. The connection handler runs requests
// serially, which is what gives the store its externally serial contract.
package server

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/shmor3/simse/internal/config"
	"github.com/shmor3/simse/pkg/core"
	"github.com/shmor3/simse/pkg/store"
)

// vectorErrorCode is the JSON-RPC code for domain errors. The structured
// data object carries a short machine code alongside.
const vectorErrorCode = -32000

// Server routes JSON-RPC requests to a VolumeStore. The store is created
// lazily when store/initialize arrives.
type Server struct {
	defaults config.Config
	logger   *zap.Logger
	store    *store.VolumeStore
}

// New creates a server with the given configuration defaults.
func New(defaults config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{defaults: defaults, logger: logger}
}

// stdioPipe adapts stdin/stdout into a single ReadWriteCloser for the
// JSON-RPC stream.
type stdioPipe struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p stdioPipe) Close() error {
	_ = p.in.Close()
	return p.out.Close()
}

// RunStdio serves NDJSON JSON-RPC on stdin/stdout until the peer
// disconnects or the context is canceled.
func (s *Server) RunStdio(ctx context.Context) error {
	rwc := stdioPipe{in: os.Stdin, out: os.Stdout}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	defer conn.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-conn.DisconnectNotify():
		return nil
	}
}

// Handle exposes the dispatch for transports other than stdio (tests drive
// it through an in-memory pipe).
func (s *Server) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	return s.handle(ctx, conn, req)
}

// rpcError wraps a domain error with its machine code.
func rpcError(err error) *jsonrpc2.Error {
	e := &jsonrpc2.Error{Code: vectorErrorCode, Message: err.Error()}
	e.SetError(map[string]string{"code": core.ErrorCode(err)})
	return e
}

// invalidParams wraps a params decoding failure.
func invalidParams(err error) *jsonrpc2.Error {
	e := &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "invalid params: " + err.Error()}
	e.SetError(map[string]string{"code": "INVALID_PARAMS"})
	return e
}

func parseParams[T any](req *jsonrpc2.Request) (T, *jsonrpc2.Error) {
	var params T
	if req.Params == nil {
		return params, nil
	}
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		return params, invalidParams(err)
	}
	return params, nil
}

// withStore runs a handler against the live store, failing with
// STACKS_NOT_LOADED before initialization.
func (s *Server) withStore(f func(st *store.VolumeStore) (interface{}, error)) (interface{}, error) {
	if s.store == nil {
		return nil, rpcError(core.ErrNotInitialized)
	}
	result, err := f(s.store)
	if err != nil {
		return nil, rpcError(err)
	}
	return result, nil
}

func (s *Server) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	s.logger.Debug("dispatch", zap.String("method", req.Method))

	switch req.Method {
	// -- Lifecycle ---------------------------------------------------------
	case "store/initialize":
		return s.handleInitialize(req)
	case "store/dispose":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			if err := st.Dispose(); err != nil {
				return nil, err
			}
			return map[string]any{}, nil
		})
	case "store/save":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			if err := st.Save(); err != nil {
				return nil, err
			}
			return map[string]any{}, nil
		})

	// -- CRUD --------------------------------------------------------------
	case "store/add":
		return s.handleAdd(req)
	case "store/addBatch":
		return s.handleAddBatch(req)
	case "store/delete":
		return s.handleDelete(req)
	case "store/deleteBatch":
		return s.handleDeleteBatch(req)
	case "store/clear":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			st.Clear()
			return map[string]any{}, nil
		})
	case "store/getById":
		return s.handleGetByID(req)
	case "store/getAll":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			return map[string]any{"volumes": nonNil(st.GetAll())}, nil
		})

	// -- Search ------------------------------------------------------------
	case "store/search":
		return s.handleSearch(req)
	case "store/textSearch":
		return s.handleTextSearch(req)
	case "store/advancedSearch":
		return s.handleAdvancedSearch(req)
	case "store/filterByMetadata":
		return s.handleFilterByMetadata(req)
	case "store/filterByDateRange":
		return s.handleFilterByDateRange(req)
	case "store/filterByTopic":
		return s.handleFilterByTopic(req)
	case "store/getTopics":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			return map[string]any{"topics": nonNil(st.GetTopics())}, nil
		})

	// -- Recommendation ----------------------------------------------------
	case "store/recommend":
		return s.handleRecommend(req)

	// -- Deduplication -----------------------------------------------------
	case "store/checkDuplicate":
		return s.handleCheckDuplicate(req)
	case "store/findDuplicates":
		return s.handleFindDuplicates(req)

	// -- Size / dirty ------------------------------------------------------
	case "store/size":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			return map[string]any{"count": st.Size()}, nil
		})
	case "store/isDirty":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			return map[string]any{"dirty": st.IsDirty()}, nil
		})

	// -- Catalog -----------------------------------------------------------
	case "catalog/resolve":
		return s.handleCatalogResolve(req)
	case "catalog/relocate":
		return s.handleCatalogRelocate(req)
	case "catalog/merge":
		return s.handleCatalogMerge(req)
	case "catalog/sections":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			return map[string]any{"sections": nonNil(st.CatalogSections())}, nil
		})
	case "catalog/volumes":
		return s.handleCatalogVolumes(req)

	// -- Learning ----------------------------------------------------------
	case "learning/recordQuery":
		return s.handleRecordQuery(req)
	case "learning/recordFeedback":
		return s.handleRecordFeedback(req)
	case "learning/profile":
		return s.withStore(func(st *store.VolumeStore) (interface{}, error) {
			profile, ok := st.GetProfile()
			if !ok {
				return map[string]any{"profile": nil}, nil
			}
			return map[string]any{"profile": profile}, nil
		})
	case "learning/correlated":
		return s.handleCorrelated(req)

	// -- Query DSL ---------------------------------------------------------
	case "query/parse":
		return s.handleQueryParse(req)

	// -- Memory context ----------------------------------------------------
	case "format/memoryContext":
		return s.handleMemoryContext(req)

	// -- Graph -------------------------------------------------------------
	case "graph/neighbors":
		return s.handleGraphNeighbors(req)
	case "graph/traverse":
		return s.handleGraphTraverse(req)

	default:
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "unknown method: " + req.Method,
		}
	}
}

// nonNil keeps empty JSON arrays as [] instead of null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

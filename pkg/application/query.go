package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/sukryu/GoKeep/pkg/domain"
	"github.com/sukryu/GoKeep/pkg/utils"
)

// QueryHandler handles execution of queries against the database.
type QueryHandler struct {
	db     *domain.Database
	logger utils.Logger
	wg     sync.WaitGroup // For async query execution tracking
}

// NewQueryHandler creates a new QueryHandler instance.
func NewQueryHandler(db *domain.Database, logger utils.Logger) *QueryHandler {
	return &QueryHandler{
		db:     db,
		logger: logger,
	}
}

// Query defines the interface for all queries.
type Query interface {
	Execute(ctx context.Context, handler *QueryHandler) (interface{}, error)
}

// GetValueQuery represents a query to retrieve a value by key.
type GetValueQuery struct {
	Key string
}

// Execute executes the GetValueQuery.
func (q *GetValueQuery) Execute(ctx context.Context, handler *QueryHandler) (interface{}, error) {
	value, err := handler.db.Get(q.Key)
	if err != nil {
		handler.logger.Warn(fmt.Sprintf("Failed to get key %s: %v", q.Key, err))
		return nil, err
	}
	return value, nil
}

// FuzzySearchQuery represents an approximate key lookup.
type FuzzySearchQuery struct {
	Pattern     string
	MaxDistance int
}

// Execute executes the FuzzySearchQuery.
func (q *FuzzySearchQuery) Execute(ctx context.Context, handler *QueryHandler) (interface{}, error) {
	entries, err := handler.db.FuzzyGet(q.Pattern, q.MaxDistance)
	if err != nil {
		handler.logger.Warn(fmt.Sprintf("Fuzzy search %q failed: %v", q.Pattern, err))
		return nil, err
	}
	return entries, nil
}

// GetStatsQuery represents a query for engine statistics.
type GetStatsQuery struct{}

// Execute executes the GetStatsQuery.
func (q *GetStatsQuery) Execute(ctx context.Context, handler *QueryHandler) (interface{}, error) {
	return handler.db.Stats(), nil
}

// GetStatusQuery represents a query to retrieve the database status.
type GetStatusQuery struct{}

// Execute executes the GetStatusQuery.
func (q *GetStatusQuery) Execute(ctx context.Context, handler *QueryHandler) (interface{}, error) {
	return handler.db.GetStatus(), nil
}

// ExecuteQuery executes a query synchronously and returns the result.
func (h *QueryHandler) ExecuteQuery(ctx context.Context, query Query) (interface{}, error) {
	return query.Execute(ctx, h)
}

// ExecuteQueryAsync executes a query asynchronously and returns a channel for the result.
func (h *QueryHandler) ExecuteQueryAsync(ctx context.Context, query Query) <-chan QueryResult {
	resultChan := make(chan QueryResult, 1)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		result, err := query.Execute(ctx, h)
		resultChan <- QueryResult{Result: result, Err: err}
		close(resultChan)
	}()
	return resultChan
}

// Wait waits for all asynchronous queries to complete.
func (h *QueryHandler) Wait() {
	h.wg.Wait()
}

func (h *QueryHandler) DB() *domain.Database {
	return h.db
}

// QueryResult wraps the result and error of an asynchronous query.
type QueryResult struct {
	Result interface{}
	Err    error
}

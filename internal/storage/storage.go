package storage

import "stableScope/internal/model"

// Storage defines a sink for quote records and simulation results.
type Storage interface {
	PutQuotes(records []model.QuoteRecord) error
	PutResults(results []model.OperationResult) error
}

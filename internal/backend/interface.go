package backend

import (
	"context"

	"caixa/internal/amqp"
	"caixa/internal/services"
	"caixa/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the ledger service and its cleanup function.
// AMQP is nil when no broker is configured or reachable.
type BackendResult struct {
	Ledger  *services.LedgerService
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Exporter writes and reads back day summary rows.
type Exporter interface {
	sheets.DaySummaryWriter
	sheets.DaySummaryReader
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the store named by config.Type and wraps it in a
	// ledger service.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateExporter returns the Google Sheets client when a spreadsheet is
	// configured, otherwise an in-memory sheet.
	CreateExporter(ctx context.Context, config Config) (Exporter, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific
	DataDirectory string

	// Optional day.updated publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Spreadsheet export
	GoogleSpreadsheetID string

	Ledger services.Options
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

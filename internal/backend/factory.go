package backend

import (
	"context"
	"fmt"
	"log/slog"

	"caixa/internal/amqp"
	"caixa/internal/services"
	gsheet "caixa/internal/sheets/google"
	"caixa/internal/sheets/memory"
	"caixa/internal/storage"
	memstore "caixa/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store services.LedgerStore
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store = memstore.NewFromFiles(dataDir)
		f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	client := f.connectAMQP(config)

	// a typed nil *amqp.Client would make the publisher non-nil
	var publisher services.DayPublisher
	if client != nil {
		publisher = client
	}
	ledger := services.NewLedgerService(store, publisher, config.Ledger)

	return &BackendResult{
		Ledger:  ledger,
		AMQP:    client,
		Cleanup: ledger.Close,
	}, nil
}

// connectAMQP is optional: a broker that is down at startup only disables
// day.updated events.
func (f *DefaultFactory) connectAMQP(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (Exporter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Info("No spreadsheet configured, exporting to memory")
		return memory.New(), nil
	}
	cli, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets exporter")
	return cli, nil
}

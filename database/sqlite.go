package database

import (
	"context"
	"database/sql"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/saiset-co/sai-data/types"
	"github.com/saiset-co/sai-data/utils"
)

type SQLiteConfig struct {
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime string `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	BusyTimeout     int    `json:"busy_timeout" yaml:"busy_timeout"`
}

type SQLiteDB struct {
	db     *sql.DB
	ctx    context.Context
	logger types.Logger
	config *types.DatabaseConfig
	state  atomic.Value
}

func NewSQLiteDB(ctx context.Context, logger types.Logger, config *types.DatabaseConfig) (types.DatabaseManager, error) {
	sqliteConfig := &SQLiteConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: "1h",
		BusyTimeout:     5000,
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, sqliteConfig); err != nil {
			return nil, types.WrapError(err, "failed to parse sqlite config")
		}
	}

	dsn := config.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	dsn += "?_journal_mode=WAL&_busy_timeout=" + strconv.Itoa(sqliteConfig.BusyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(err, "failed to open sqlite database")
	}

	// sqlite serializes writers; more than one open connection on an
	// in-memory database would see separate databases entirely.
	maxOpen := sqliteConfig.MaxOpenConns
	if config.Path == "" || maxOpen < 1 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(sqliteConfig.MaxIdleConns)
	if lifetime, err := time.ParseDuration(sqliteConfig.ConnMaxLifetime); err == nil {
		db.SetConnMaxLifetime(lifetime)
	}

	sdb := &SQLiteDB{
		db:     db,
		ctx:    ctx,
		logger: logger,
		config: config,
	}

	sdb.state.Store(StateStopped)
	return sdb, nil
}

func (s *SQLiteDB) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrComponentAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to ping sqlite database")
	}

	s.logger.Info("SQLiteDB started")
	return nil
}

func (s *SQLiteDB) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrComponentNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close sqlite database")
	}

	s.logger.Info("SQLiteDB stopped gracefully")
	return nil
}

func (s *SQLiteDB) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *SQLiteDB) CreateCollection(collectionName string) error {
	if err := validateCollectionName(collectionName); err != nil {
		return err
	}

	_, err := s.db.ExecContext(s.ctx, buildCreateTableSQL(collectionName))
	if err != nil {
		return types.WrapError(err, "failed to create collection")
	}

	return nil
}

func (s *SQLiteDB) DropCollection(collectionName string) error {
	if err := validateCollectionName(collectionName); err != nil {
		return err
	}

	_, err := s.db.ExecContext(s.ctx, buildDropTableSQL(collectionName))
	if err != nil {
		return types.WrapError(err, "failed to drop collection")
	}

	return nil
}

func (s *SQLiteDB) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if len(request.Data) == 0 {
		return []string{}, nil
	}

	if err := s.ensureCollection(ctx, request.Collection); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, types.WrapError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, buildInsertSQL(request.Collection))
	if err != nil {
		return nil, types.WrapError(err, "failed to prepare insert")
	}
	defer stmt.Close()

	var ids []string
	now := time.Now().UnixNano()

	for i, data := range request.Data {
		dataMap, ok := data.(map[string]interface{})
		if !ok {
			return nil, types.Errorf(types.ErrDatabaseInvalidData, "data must be a map")
		}

		internalID := uuid.New().String()
		docTime := now + int64(i)

		dataMap[FieldInternalID] = internalID
		dataMap[FieldCreatedAt] = docTime
		dataMap[FieldChangedAt] = docTime

		payload, err := utils.Marshal(dataMap)
		if err != nil {
			return nil, types.WrapError(err, "failed to serialize document")
		}

		if _, err := stmt.ExecContext(ctx, internalID, docTime, docTime, utils.BytesToString(payload)); err != nil {
			return nil, types.WrapError(err, "failed to insert document")
		}

		ids = append(ids, internalID)
	}

	if err := tx.Commit(); err != nil {
		return nil, types.WrapError(err, "failed to commit insert")
	}

	return ids, nil
}

func (s *SQLiteDB) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	if err := validateCollectionName(request.Collection); err != nil {
		return nil, 0, err
	}

	if exists, err := s.collectionExists(ctx, request.Collection); err != nil {
		return nil, 0, err
	} else if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	countSQL, countArgs, err := buildCountSQL(request.Collection, request.Filter)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, types.Errorf(types.ErrDatabaseQueryFailed, "count failed: %v", err)
	}

	selectSQL, selectArgs, err := buildSelectSQL(request)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, 0, types.Errorf(types.ErrDatabaseQueryFailed, "select failed: %v", err)
	}
	defer rows.Close()

	results := []map[string]interface{}{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, types.WrapError(err, "failed to scan document row")
		}

		var doc map[string]interface{}
		if err := utils.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, 0, types.WrapError(err, "failed to decode document")
		}

		results = append(results, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, types.WrapError(err, "failed to iterate document rows")
	}

	return results, total, nil
}

func (s *SQLiteDB) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	if err := validateCollectionName(request.Collection); err != nil {
		return 0, err
	}

	if err := s.ensureCollection(ctx, request.Collection); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, types.WrapError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	selectSQL, selectArgs, err := buildSelectForUpdateSQL(request.Collection, request.Filter)
	if err != nil {
		return 0, err
	}

	rows, err := tx.QueryContext(ctx, selectSQL, selectArgs...)
	if err != nil {
		return 0, types.Errorf(types.ErrDatabaseQueryFailed, "select for update failed: %v", err)
	}

	type pendingUpdate struct {
		id  string
		doc map[string]interface{}
	}

	var updates []pendingUpdate
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			return 0, types.WrapError(err, "failed to scan document row")
		}

		var doc map[string]interface{}
		if err := utils.Unmarshal([]byte(payload), &doc); err != nil {
			rows.Close()
			return 0, types.WrapError(err, "failed to decode document")
		}

		updates = append(updates, pendingUpdate{id: id, doc: doc})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, types.WrapError(err, "failed to iterate document rows")
	}
	rows.Close()

	now := time.Now().UnixNano()

	if len(updates) == 0 {
		if !request.Upsert {
			return 0, nil
		}

		if err := tx.Commit(); err != nil {
			return 0, types.WrapError(err, "failed to commit update")
		}

		doc := make(map[string]interface{})
		if err := applyUpdateOperations(doc, request.Data); err != nil {
			return 0, err
		}
		delete(doc, FieldInternalID)
		delete(doc, FieldCreatedAt)
		delete(doc, FieldChangedAt)

		_, err := s.CreateDocuments(ctx, types.CreateDocumentsRequest{
			Collection: request.Collection,
			Data:       []interface{}{doc},
		})
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	updateStmt, err := tx.PrepareContext(ctx, buildUpdateRowSQL(request.Collection))
	if err != nil {
		return 0, types.WrapError(err, "failed to prepare update")
	}
	defer updateStmt.Close()

	for _, update := range updates {
		if err := applyUpdateOperations(update.doc, request.Data); err != nil {
			return 0, err
		}
		update.doc[FieldInternalID] = update.id
		update.doc[FieldChangedAt] = now

		payload, err := utils.Marshal(update.doc)
		if err != nil {
			return 0, types.WrapError(err, "failed to serialize document")
		}

		if _, err := updateStmt.ExecContext(ctx, utils.BytesToString(payload), now, update.id); err != nil {
			return 0, types.WrapError(err, "failed to update document")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, types.WrapError(err, "failed to commit update")
	}

	return int64(len(updates)), nil
}

func (s *SQLiteDB) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	if err := validateCollectionName(request.Collection); err != nil {
		return 0, err
	}

	if exists, err := s.collectionExists(ctx, request.Collection); err != nil {
		return 0, err
	} else if !exists {
		return 0, nil
	}

	deleteSQL, deleteArgs, err := buildDeleteSQL(request.Collection, request.Filter)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, deleteSQL, deleteArgs...)
	if err != nil {
		return 0, types.Errorf(types.ErrDatabaseQueryFailed, "delete failed: %v", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, types.WrapError(err, "failed to read affected rows")
	}

	return deleted, nil
}

func (s *SQLiteDB) ensureCollection(ctx context.Context, collection string) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, buildCreateTableSQL(collection))
	if err != nil {
		return types.WrapError(err, "failed to ensure collection")
	}

	return nil
}

func (s *SQLiteDB) collectionExists(ctx context.Context, collection string) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", collection).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, types.WrapError(err, "failed to check collection")
	}
	return true, nil
}

func (s *SQLiteDB) getState() State {
	return s.state.Load().(State)
}

func (s *SQLiteDB) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *SQLiteDB) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

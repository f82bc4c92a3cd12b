package persistence

import (
	"clarity/internal/core"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface on a local SQLite file.
// It is the zero-setup backend: similarity search runs as a brute-force
// scan over stored embeddings instead of a native vector operator.
type SQLiteDB struct {
	db           *sql.DB
	path         string
	users        UserRepository
	topics       TopicRepository
	sources      SourceRepository
	associations AssociationRepository
}

// NewSQLiteDB opens (or creates) a SQLite database under dataDir
func NewSQLiteDB(dataDir string) (*SQLiteDB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "clarity.db")
	// Foreign keys must be enabled per connection for cascade deletes to fire
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteDB{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s.users = &sqliteUserRepo{db: db}
	s.topics = &sqliteTopicRepo{db: db}
	s.sources = &sqliteSourceRepo{db: db}
	s.associations = &sqliteAssociationRepo{db: db}

	return s, nil
}

// initialize creates the necessary tables
func (s *SQLiteDB) initialize() error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		telegram_id INTEGER NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);`

	topicsTable := `
	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		topic TEXT NOT NULL,
		embedding TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (user_id, topic)
	);`

	sourcesTable := `
	CREATE TABLE IF NOT EXISTS content_sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		embedding TEXT,
		created_at DATETIME NOT NULL
	);`

	associationsTable := `
	CREATE TABLE IF NOT EXISTS topic_sources (
		topic_id TEXT NOT NULL REFERENCES topics (id) ON DELETE CASCADE,
		source_id TEXT NOT NULL REFERENCES content_sources (id) ON DELETE CASCADE,
		similarity REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (topic_id, source_id)
	);`

	tables := []string{usersTable, topicsTable, sourcesTable, associationsTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

func (s *SQLiteDB) Users() UserRepository               { return s.users }
func (s *SQLiteDB) Topics() TopicRepository             { return s.topics }
func (s *SQLiteDB) Sources() SourceRepository           { return s.sources }
func (s *SQLiteDB) Associations() AssociationRepository { return s.associations }

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isSQLiteUniqueViolation reports whether err is a unique constraint violation
func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// marshalEmbeddingText renders an embedding as JSON text, nil when absent
func marshalEmbeddingText(embedding []float64) (interface{}, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(data), nil
}

// sqliteUserRepo implements UserRepository for SQLite
type sqliteUserRepo struct {
	db *sql.DB
}

func (r *sqliteUserRepo) Upsert(ctx context.Context, user *core.User) error {
	query := `
	INSERT INTO users (id, telegram_id, username, first_name, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (telegram_id) DO UPDATE SET
		username = excluded.username,
		first_name = excluded.first_name`

	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.TelegramID, user.Username, user.FirstName, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	// Read back the canonical row so callers see the original ID on conflict
	stored, err := r.GetByTelegramID(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

func (r *sqliteUserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*core.User, error) {
	query := `
	SELECT id, telegram_id, username, first_name, created_at
	FROM users WHERE telegram_id = ?`

	var user core.User
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(
		&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// sqliteTopicRepo implements TopicRepository for SQLite
type sqliteTopicRepo struct {
	db *sql.DB
}

func (r *sqliteTopicRepo) Create(ctx context.Context, topic *core.Topic) error {
	embeddingText, err := marshalEmbeddingText(topic.Embedding)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO topics (id, user_id, topic, embedding, created_at)
	VALUES (?, ?, ?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query,
		topic.ID, topic.UserID, topic.Text, embeddingText, topic.CreatedAt,
	); err != nil {
		if isSQLiteUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert topic: %w", err)
	}
	return nil
}

func (r *sqliteTopicRepo) Get(ctx context.Context, id string) (*core.Topic, error) {
	query := `
	SELECT id, user_id, topic, embedding, created_at
	FROM topics WHERE id = ?`
	return scanTopic(r.db.QueryRowContext(ctx, query, id))
}

func (r *sqliteTopicRepo) GetByUserAndText(ctx context.Context, userID, text string) (*core.Topic, error) {
	query := `
	SELECT id, user_id, topic, embedding, created_at
	FROM topics WHERE user_id = ? AND topic = ?`
	return scanTopic(r.db.QueryRowContext(ctx, query, userID, text))
}

func (r *sqliteTopicRepo) ListByUser(ctx context.Context, userID string) ([]core.TopicWithStats, error) {
	query := `
	SELECT t.id, t.user_id, t.topic, t.embedding, t.created_at,
	       COUNT(ts.source_id) AS source_count
	FROM topics t
	LEFT JOIN topic_sources ts ON ts.topic_id = t.id
	WHERE t.user_id = ?
	GROUP BY t.id
	ORDER BY t.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var results []core.TopicWithStats
	for rows.Next() {
		var item core.TopicWithStats
		var embeddingJSON []byte
		if err := rows.Scan(
			&item.Topic.ID, &item.Topic.UserID, &item.Topic.Text,
			&embeddingJSON, &item.Topic.CreatedAt, &item.SourceCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		if err := unmarshalEmbedding(embeddingJSON, &item.Topic.Embedding); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (r *sqliteTopicRepo) ListMissingEmbeddings(ctx context.Context, userID string) ([]core.Topic, error) {
	query := `
	SELECT id, user_id, topic, embedding, created_at
	FROM topics
	WHERE embedding IS NULL`
	args := []interface{}{}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics missing embeddings: %w", err)
	}
	defer rows.Close()

	var topics []core.Topic
	for rows.Next() {
		topic, err := scanTopicRow(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, *topic)
	}
	return topics, rows.Err()
}

func (r *sqliteTopicRepo) UpdateEmbedding(ctx context.Context, id string, embedding []float64) error {
	embeddingText, err := marshalEmbeddingText(embedding)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE topics SET embedding = ? WHERE id = ?`, embeddingText, id)
	if err != nil {
		return fmt.Errorf("failed to update topic embedding: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *sqliteTopicRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// sqliteSourceRepo implements SourceRepository for SQLite
type sqliteSourceRepo struct {
	db *sql.DB
}

func (r *sqliteSourceRepo) Create(ctx context.Context, source *core.ContentSource) error {
	embeddingText, err := marshalEmbeddingText(source.Embedding)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO content_sources (id, name, description, url, type, embedding, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query,
		source.ID, source.Name, source.Description, source.URL,
		string(source.Type), embeddingText, source.CreatedAt,
	); err != nil {
		if isSQLiteUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert content source: %w", err)
	}
	return nil
}

func (r *sqliteSourceRepo) Get(ctx context.Context, id string) (*core.ContentSource, error) {
	query := `
	SELECT id, name, description, url, type, embedding, created_at
	FROM content_sources WHERE id = ?`
	return scanSource(r.db.QueryRowContext(ctx, query, id))
}

func (r *sqliteSourceRepo) GetByURL(ctx context.Context, url string) (*core.ContentSource, error) {
	query := `
	SELECT id, name, description, url, type, embedding, created_at
	FROM content_sources WHERE url = ?`
	return scanSource(r.db.QueryRowContext(ctx, query, url))
}

func (r *sqliteSourceRepo) List(ctx context.Context) ([]core.ContentSource, error) {
	query := `
	SELECT id, name, description, url, type, embedding, created_at
	FROM content_sources
	ORDER BY created_at`
	return r.listSources(ctx, query)
}

func (r *sqliteSourceRepo) ListWithEmbeddings(ctx context.Context) ([]core.ContentSource, error) {
	query := `
	SELECT id, name, description, url, type, embedding, created_at
	FROM content_sources
	WHERE embedding IS NOT NULL
	ORDER BY created_at`
	return r.listSources(ctx, query)
}

func (r *sqliteSourceRepo) listSources(ctx context.Context, query string) ([]core.ContentSource, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list content sources: %w", err)
	}
	defer rows.Close()

	var sources []core.ContentSource
	for rows.Next() {
		source, err := scanSourceRow(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}
	return sources, rows.Err()
}

func (r *sqliteSourceRepo) UpdateEmbedding(ctx context.Context, id string, embedding []float64) error {
	embeddingText, err := marshalEmbeddingText(embedding)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE content_sources SET embedding = ? WHERE id = ?`, embeddingText, id)
	if err != nil {
		return fmt.Errorf("failed to update source embedding: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// sqliteAssociationRepo implements AssociationRepository for SQLite
type sqliteAssociationRepo struct {
	db *sql.DB
}

func (r *sqliteAssociationRepo) CreateBatch(ctx context.Context, associations []core.TopicSourceAssociation) error {
	if len(associations) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO topic_sources (topic_id, source_id, similarity, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (topic_id, source_id) DO NOTHING`

	for _, assoc := range associations {
		if _, err := tx.ExecContext(ctx, query,
			assoc.TopicID, assoc.SourceID, assoc.Similarity, assoc.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert association: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit associations: %w", err)
	}
	return nil
}

func (r *sqliteAssociationRepo) ListByTopic(ctx context.Context, topicID string) ([]core.SourceMatch, error) {
	query := `
	SELECT s.id, s.name, s.description, s.url, s.type, s.embedding, s.created_at,
	       ts.similarity
	FROM topic_sources ts
	INNER JOIN content_sources s ON s.id = ts.source_id
	WHERE ts.topic_id = ?
	ORDER BY ts.similarity DESC`

	rows, err := r.db.QueryContext(ctx, query, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topic sources: %w", err)
	}
	defer rows.Close()

	var matches []core.SourceMatch
	for rows.Next() {
		var match core.SourceMatch
		var embeddingJSON []byte
		var sourceType string
		if err := rows.Scan(
			&match.Source.ID, &match.Source.Name, &match.Source.Description,
			&match.Source.URL, &sourceType, &embeddingJSON, &match.Source.CreatedAt,
			&match.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan topic source: %w", err)
		}
		match.Source.Type = core.SourceType(sourceType)
		if err := unmarshalEmbedding(embeddingJSON, &match.Source.Embedding); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func (r *sqliteAssociationRepo) CountByTopic(ctx context.Context, topicID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM topic_sources WHERE topic_id = ?`, topicID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count topic sources: %w", err)
	}
	return count, nil
}

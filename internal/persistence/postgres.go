package persistence

import (
	"clarity/internal/core"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresDB implements the Database interface for PostgreSQL with pgvector
type PostgresDB struct {
	db           *sql.DB
	users        UserRepository
	topics       TopicRepository
	sources      SourceRepository
	associations AssociationRepository
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pgDB := &PostgresDB{db: db}
	pgDB.users = &postgresUserRepo{db: db}
	pgDB.topics = &postgresTopicRepo{db: db}
	pgDB.sources = &postgresSourceRepo{db: db}
	pgDB.associations = &postgresAssociationRepo{db: db}

	return pgDB, nil
}

func (p *PostgresDB) Users() UserRepository               { return p.users }
func (p *PostgresDB) Topics() TopicRepository             { return p.topics }
func (p *PostgresDB) Sources() SourceRepository           { return p.sources }
func (p *PostgresDB) Associations() AssociationRepository { return p.associations }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// DB exposes the underlying connection for the vector store and migrations.
func (p *PostgresDB) DB() *sql.DB {
	return p.db
}

// isPgUniqueViolation reports whether err is a unique constraint violation
func isPgUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// formatVector converts an embedding to pgvector input format: "[0.1,0.2,...]"
func formatVector(embedding []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, val := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%f", val)
	}
	sb.WriteByte(']')
	return sb.String()
}

// embeddingColumns returns the JSONB and pgvector representations of an
// embedding, both nil when the embedding is absent.
func embeddingColumns(embedding []float64) (interface{}, interface{}, error) {
	if len(embedding) == 0 {
		return nil, nil, nil
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return embeddingJSON, formatVector(embedding), nil
}

// postgresUserRepo implements UserRepository for PostgreSQL
type postgresUserRepo struct {
	db *sql.DB
}

func (r *postgresUserRepo) Upsert(ctx context.Context, user *core.User) error {
	query := `
		INSERT INTO users (id, telegram_id, username, first_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.TelegramID, user.Username, user.FirstName, user.CreatedAt,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *postgresUserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*core.User, error) {
	query := `
		SELECT id, telegram_id, username, first_name, created_at
		FROM users WHERE telegram_id = $1
	`
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

// postgresTopicRepo implements TopicRepository for PostgreSQL
type postgresTopicRepo struct {
	db *sql.DB
}

func (r *postgresTopicRepo) Create(ctx context.Context, topic *core.Topic) error {
	embeddingJSON, embeddingVector, err := embeddingColumns(topic.Embedding)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO topics (id, user_id, topic, embedding, embedding_vector, created_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6)
	`
	_, err = r.db.ExecContext(ctx, query,
		topic.ID, topic.UserID, topic.Text, embeddingJSON, embeddingVector, topic.CreatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert topic: %w", err)
	}
	return nil
}

func (r *postgresTopicRepo) Get(ctx context.Context, id string) (*core.Topic, error) {
	query := `
		SELECT id, user_id, topic, embedding, created_at
		FROM topics WHERE id = $1
	`
	return scanTopic(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresTopicRepo) GetByUserAndText(ctx context.Context, userID, text string) (*core.Topic, error) {
	query := `
		SELECT id, user_id, topic, embedding, created_at
		FROM topics WHERE user_id = $1 AND topic = $2
	`
	return scanTopic(r.db.QueryRowContext(ctx, query, userID, text))
}

func (r *postgresTopicRepo) ListByUser(ctx context.Context, userID string) ([]core.TopicWithStats, error) {
	query := `
		SELECT t.id, t.user_id, t.topic, t.embedding, t.created_at,
		       COUNT(ts.source_id) AS source_count
		FROM topics t
		LEFT JOIN topic_sources ts ON ts.topic_id = t.id
		WHERE t.user_id = $1
		GROUP BY t.id
		ORDER BY t.created_at DESC
	`
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

func (r *postgresTopicRepo) ListMissingEmbeddings(ctx context.Context, userID string) ([]core.Topic, error) {
	query := `
		SELECT id, user_id, topic, embedding, created_at
		FROM topics
		WHERE embedding IS NULL
	`
	args := []interface{}{}
	if userID != "" {
		query += " AND user_id = $1"
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

func (r *postgresTopicRepo) UpdateEmbedding(ctx context.Context, id string, embedding []float64) error {
	embeddingJSON, embeddingVector, err := embeddingColumns(embedding)
	if err != nil {
		return err
	}

	query := `
		UPDATE topics
		SET embedding = $2, embedding_vector = $3::vector
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, embeddingJSON, embeddingVector)
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

func (r *postgresTopicRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM topics WHERE id = $1`, id)
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

// postgresSourceRepo implements SourceRepository for PostgreSQL
type postgresSourceRepo struct {
	db *sql.DB
}

func (r *postgresSourceRepo) Create(ctx context.Context, source *core.ContentSource) error {
	embeddingJSON, embeddingVector, err := embeddingColumns(source.Embedding)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO content_sources (id, name, description, url, type, embedding, embedding_vector, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		source.ID, source.Name, source.Description, source.URL, string(source.Type),
		embeddingJSON, embeddingVector, source.CreatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert content source: %w", err)
	}
	return nil
}

func (r *postgresSourceRepo) Get(ctx context.Context, id string) (*core.ContentSource, error) {
	query := `
		SELECT id, name, description, url, type, embedding, created_at
		FROM content_sources WHERE id = $1
	`
	return scanSource(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresSourceRepo) GetByURL(ctx context.Context, url string) (*core.ContentSource, error) {
	query := `
		SELECT id, name, description, url, type, embedding, created_at
		FROM content_sources WHERE url = $1
	`
	return scanSource(r.db.QueryRowContext(ctx, query, url))
}

func (r *postgresSourceRepo) List(ctx context.Context) ([]core.ContentSource, error) {
	query := `
		SELECT id, name, description, url, type, embedding, created_at
		FROM content_sources
		ORDER BY created_at
	`
	return r.listSources(ctx, query)
}

func (r *postgresSourceRepo) ListWithEmbeddings(ctx context.Context) ([]core.ContentSource, error) {
	query := `
		SELECT id, name, description, url, type, embedding, created_at
		FROM content_sources
		WHERE embedding IS NOT NULL
		ORDER BY created_at
	`
	return r.listSources(ctx, query)
}

func (r *postgresSourceRepo) listSources(ctx context.Context, query string) ([]core.ContentSource, error) {
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

func (r *postgresSourceRepo) UpdateEmbedding(ctx context.Context, id string, embedding []float64) error {
	embeddingJSON, embeddingVector, err := embeddingColumns(embedding)
	if err != nil {
		return err
	}

	query := `
		UPDATE content_sources
		SET embedding = $2, embedding_vector = $3::vector
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, embeddingJSON, embeddingVector)
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

// postgresAssociationRepo implements AssociationRepository for PostgreSQL
type postgresAssociationRepo struct {
	db *sql.DB
}

func (r *postgresAssociationRepo) CreateBatch(ctx context.Context, associations []core.TopicSourceAssociation) error {
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
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (topic_id, source_id) DO NOTHING
	`
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

func (r *postgresAssociationRepo) ListByTopic(ctx context.Context, topicID string) ([]core.SourceMatch, error) {
	query := `
		SELECT s.id, s.name, s.description, s.url, s.type, s.embedding, s.created_at,
		       ts.similarity
		FROM topic_sources ts
		INNER JOIN content_sources s ON s.id = ts.source_id
		WHERE ts.topic_id = $1
		ORDER BY ts.similarity DESC
	`
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

func (r *postgresAssociationRepo) CountByTopic(ctx context.Context, topicID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM topic_sources WHERE topic_id = $1`, topicID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count topic sources: %w", err)
	}
	return count, nil
}

// scanTopic reads a topic from a single-row query
func scanTopic(row *sql.Row) (*core.Topic, error) {
	var topic core.Topic
	var embeddingJSON []byte

	err := row.Scan(&topic.ID, &topic.UserID, &topic.Text, &embeddingJSON, &topic.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan topic: %w", err)
	}
	if err := unmarshalEmbedding(embeddingJSON, &topic.Embedding); err != nil {
		return nil, err
	}
	return &topic, nil
}

func scanTopicRow(rows *sql.Rows) (*core.Topic, error) {
	var topic core.Topic
	var embeddingJSON []byte

	if err := rows.Scan(&topic.ID, &topic.UserID, &topic.Text, &embeddingJSON, &topic.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan topic: %w", err)
	}
	if err := unmarshalEmbedding(embeddingJSON, &topic.Embedding); err != nil {
		return nil, err
	}
	return &topic, nil
}

// scanSource reads a content source from a single-row query
func scanSource(row *sql.Row) (*core.ContentSource, error) {
	var source core.ContentSource
	var embeddingJSON []byte
	var sourceType string

	err := row.Scan(
		&source.ID, &source.Name, &source.Description, &source.URL,
		&sourceType, &embeddingJSON, &source.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan content source: %w", err)
	}
	source.Type = core.SourceType(sourceType)
	if err := unmarshalEmbedding(embeddingJSON, &source.Embedding); err != nil {
		return nil, err
	}
	return &source, nil
}

func scanSourceRow(rows *sql.Rows) (*core.ContentSource, error) {
	var source core.ContentSource
	var embeddingJSON []byte
	var sourceType string

	if err := rows.Scan(
		&source.ID, &source.Name, &source.Description, &source.URL,
		&sourceType, &embeddingJSON, &source.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan content source: %w", err)
	}
	source.Type = core.SourceType(sourceType)
	if err := unmarshalEmbedding(embeddingJSON, &source.Embedding); err != nil {
		return nil, err
	}
	return &source, nil
}

func unmarshalEmbedding(data []byte, target *[]float64) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hmeierhoff/clearsearch/core/retrieval"
	"github.com/hmeierhoff/clearsearch/helper"
	"github.com/hmeierhoff/clearsearch/model"
	loadSql "github.com/hmeierhoff/clearsearch/sql"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PassagesDBHandlerFunctions defines the interface for passage database operations.
type PassagesDBHandlerFunctions interface {
	InsertPassage(passage *model.PassageCandidate, embedding []float32) error
	SelectPassage(id uuid.UUID) (*model.PassageCandidate, error)
	UpdatePassageEmbedding(id uuid.UUID, embedding []float32) error
	DeletePassage(id uuid.UUID) error
	Search(ctx context.Context, embedding []float32, k int, filter *retrieval.SearchFilter) ([]*model.PassageCandidate, error)
}

// PassagesDBHandler handles passage-related database operations. Its Search
// method is the pgvector-backed vector search provider of the retrieval engine.
type PassagesDBHandler struct {
	db *helper.Database
}

// NewPassagesDBHandler creates a new passages database handler.
// It initializes the database connection and loads passage-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewPassagesDBHandler(db *helper.Database, embeddingDim int, force bool) (*PassagesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	passagesDbHandler := &PassagesDBHandler{
		db: db,
	}

	err := loadSql.LoadPassagesSql(passagesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load passages sql", err)
	}

	err = passagesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized PassagesDBHandler")

	return passagesDbHandler, nil
}

// CreateTable creates the 'passages' table in the database.
// If the table already exists, it does not create it again.
// It also creates the security level and vector indexes.
func (h *PassagesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_passages($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("initializing passages table", err)
	}

	h.db.Logger.Info("Checked/created table passages")

	return nil
}

// InsertPassage inserts a new passage with its embedding.
// The generated ID is written back into the passage.
func (h *PassagesDBHandler) InsertPassage(passage *model.PassageCandidate, embedding []float32) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_passage($1, $2, $3, $4, $5, $6, $7)`,
		passage.Content,
		passage.Source,
		passage.SecurityLevel,
		passage.DepartmentID,
		passage.DepartmentRestricted,
		passage.Metadata,
		pgvector.NewVector(embedding),
	)

	var storedEmbedding pgvector.Vector
	var createdAt time.Time
	err := row.Scan(
		&passage.ID,
		&passage.Content,
		&passage.Source,
		&passage.SecurityLevel,
		&passage.DepartmentID,
		&passage.DepartmentRestricted,
		&passage.Metadata,
		&storedEmbedding,
		&createdAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectPassage retrieves a passage by ID.
func (h *PassagesDBHandler) SelectPassage(id uuid.UUID) (*model.PassageCandidate, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_passage($1)`,
		id,
	)

	passage := &model.PassageCandidate{}
	var storedEmbedding pgvector.Vector
	var createdAt time.Time
	err := row.Scan(
		&passage.ID,
		&passage.Content,
		&passage.Source,
		&passage.SecurityLevel,
		&passage.DepartmentID,
		&passage.DepartmentRestricted,
		&passage.Metadata,
		&storedEmbedding,
		&createdAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return passage, nil
}

// UpdatePassageEmbedding replaces the embedding of a passage.
func (h *PassagesDBHandler) UpdatePassageEmbedding(id uuid.UUID, embedding []float32) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_passage_embedding($1, $2)`,
		id,
		pgvector.NewVector(embedding),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeletePassage deletes a passage by ID.
func (h *PassagesDBHandler) DeletePassage(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_passage($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// Search performs vector similarity search and returns the k nearest
// passages ordered by descending similarity. A nil filter returns candidates
// at every security level; clearance enforcement happens in the caller.
func (h *PassagesDBHandler) Search(ctx context.Context, embedding []float32, k int, filter *retrieval.SearchFilter) ([]*model.PassageCandidate, error) {
	embeddingVector := pgvector.NewVector(embedding)

	var rows *sql.Rows
	var err error
	if filter != nil && (filter.MaxSecurityLevel > 0 || len(filter.DepartmentIDs) > 0) {
		maxLevel := filter.MaxSecurityLevel
		if maxLevel == 0 {
			// Department-only filter: no level ceiling.
			maxLevel = model.LevelHighlyConfidential
		}
		rows, err = h.db.Instance.QueryContext(ctx,
			`SELECT * FROM select_passages_by_similarity_filtered($1, $2, $3, $4)`,
			embeddingVector,
			k,
			maxLevel,
			pq.Array(filter.DepartmentIDs),
		)
	} else {
		rows, err = h.db.Instance.QueryContext(ctx,
			`SELECT * FROM select_passages_by_similarity($1, $2)`,
			embeddingVector,
			k,
		)
	}
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.PassageCandidate
	for rows.Next() {
		passage := &model.PassageCandidate{}
		err := rows.Scan(
			&passage.ID,
			&passage.Content,
			&passage.Source,
			&passage.SecurityLevel,
			&passage.DepartmentID,
			&passage.DepartmentRestricted,
			&passage.Metadata,
			&passage.SimilarityScore,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		passage.Score = passage.SimilarityScore
		passage.RetrievalMethod = model.RetrievalMethodVector
		results = append(results, passage)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

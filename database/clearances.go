package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hmeierhoff/clearsearch/helper"
	"github.com/hmeierhoff/clearsearch/model"
	loadSql "github.com/hmeierhoff/clearsearch/sql"
)

// ErrClearanceNotFound is returned when no clearance record exists for a user.
var ErrClearanceNotFound = errors.New("no clearance record for user")

// ClearancesDBHandlerFunctions defines the interface for clearance database operations.
type ClearancesDBHandlerFunctions interface {
	UpsertUserClearance(clearance *model.UserClearance) error
	SelectUserClearance(ctx context.Context, userID uuid.UUID) (*model.UserClearance, error)
	DeleteUserClearance(userID uuid.UUID) error
}

// ClearancesDBHandler handles user clearance database operations. It is the
// clearance resolver of the retrieval engine: every retrieval resolves the
// user's current attributes through it, so role changes apply on the next
// query without invalidation machinery.
type ClearancesDBHandler struct {
	db *helper.Database
}

// NewClearancesDBHandler creates a new clearances database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewClearancesDBHandler(db *helper.Database, force bool) (*ClearancesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	clearancesDbHandler := &ClearancesDBHandler{
		db: db,
	}

	err := loadSql.LoadClearancesSql(clearancesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load clearances sql", err)
	}

	err = clearancesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ClearancesDBHandler")

	return clearancesDbHandler, nil
}

// CreateTable creates the 'user_clearances' table in the database.
// If the table already exists, it does not create it again.
func (h *ClearancesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_user_clearances();`)
	if err != nil {
		return helper.NewError("initializing user_clearances table", err)
	}

	h.db.Logger.Info("Checked/created table user_clearances")

	return nil
}

// UpsertUserClearance inserts or updates the clearance record for a user.
func (h *ClearancesDBHandler) UpsertUserClearance(clearance *model.UserClearance) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_user_clearance($1, $2, $3, $4, $5)`,
		clearance.UserID,
		clearance.OrgLevel,
		clearance.DepartmentLevel,
		clearance.DepartmentID,
		clearance.IsAdmin,
	)

	var updatedAt time.Time
	err := row.Scan(
		&clearance.UserID,
		&clearance.OrgLevel,
		&clearance.DepartmentLevel,
		&clearance.DepartmentID,
		&clearance.IsAdmin,
		&updatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectUserClearance retrieves the clearance record for a user.
// Returns ErrClearanceNotFound when the user has no record; callers must
// treat that as no access, not as general-level access.
func (h *ClearancesDBHandler) SelectUserClearance(ctx context.Context, userID uuid.UUID) (*model.UserClearance, error) {
	row := h.db.Instance.QueryRowContext(ctx,
		`SELECT * FROM select_user_clearance($1)`,
		userID,
	)

	clearance := &model.UserClearance{}
	var updatedAt time.Time
	err := row.Scan(
		&clearance.UserID,
		&clearance.OrgLevel,
		&clearance.DepartmentLevel,
		&clearance.DepartmentID,
		&clearance.IsAdmin,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrClearanceNotFound, userID)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return clearance, nil
}

// DeleteUserClearance deletes the clearance record for a user.
func (h *ClearancesDBHandler) DeleteUserClearance(userID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_user_clearance($1)`,
		userID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

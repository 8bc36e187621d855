package db

// provisionings.go contains all SQL query functions for the provisionings table.
// raw SQL is used so the query layer stays explicit and auditable.

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

// ErrRecordNotFound is returned when no row matches the given ID.
// handlers map it to 404 instead of 500.
var ErrRecordNotFound = errors.New("provisioning not found")

// interruptedMessage is stored on runs that were still active when the process stopped
const interruptedMessage = "provisioning interrupted by a restart of the control plane"

const provisioningColumns = `
	id, slug, source_version, runtime_variant, destination_root,
	include_environment, status, progress, current_stage, current_phase,
	final_paths, commits, error_kind, error_message, created_at, updated_at
`

// InsertProvisioning writes a new row. ID, Slug and Status must already be populated,
// CreatedAt and UpdatedAt are set here.
func (database *Database) InsertProvisioning(provisioning *models.Provisioning) error {
	query := `
		INSERT INTO provisionings (` + provisioningColumns + `) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?
		)
	`

	timeNow := time.Now().UTC()
	provisioning.CreatedAt = timeNow
	provisioning.UpdatedAt = timeNow

	finalPaths, err := encodeStageMap(provisioning.FinalPaths)
	if err != nil {
		return err
	}
	commits, err := encodeStageMap(provisioning.Commits)
	if err != nil {
		return err
	}

	_, err = database.connection.Exec(query,
		provisioning.ID,
		provisioning.Slug,
		provisioning.SourceVersion,
		provisioning.RuntimeVariant,
		provisioning.DestinationRoot,
		provisioning.IncludeEnvironment, // bool, driver converts to 0/1
		provisioning.Status,
		provisioning.Progress,
		provisioning.CurrentStage,
		provisioning.CurrentPhase,
		finalPaths, // nil inserts NULL
		commits,
		provisioning.ErrorKind,
		provisioning.ErrorMessage,
		provisioning.CreatedAt,
		provisioning.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert provisioning %q: %w", provisioning.ID, err)
	}
	return nil
}

// GetProvisioning fetches a single row by its UUID.
func (database *Database) GetProvisioning(id string) (*models.Provisioning, error) {
	query := `SELECT ` + provisioningColumns + ` FROM provisionings WHERE id = ?`

	provisioning, err := scanProvisioning(database.connection.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provisioning %q: %w", id, err)
	}
	return provisioning, nil
}

// ListProvisionings returns all rows, newest first.
func (database *Database) ListProvisionings() ([]*models.Provisioning, error) {
	query := `SELECT ` + provisioningColumns + ` FROM provisionings ORDER BY created_at DESC`

	rows, err := database.connection.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list provisionings: %w", err)
	}
	// rows holds a pooled connection until closed
	defer rows.Close()

	provisionings := []*models.Provisioning{}
	for rows.Next() {
		provisioning, err := scanProvisioning(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provisioning row: %w", err)
		}
		provisionings = append(provisionings, provisioning)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provisioning rows: %w", err)
	}
	return provisionings, nil
}

// ListDestinationRoots returns every distinct destination root ever provisioned.
// the sweeper walks these for staging leftovers.
func (database *Database) ListDestinationRoots() ([]string, error) {
	rows, err := database.connection.Query(`SELECT DISTINCT destination_root FROM provisionings ORDER BY destination_root`)
	if err != nil {
		return nil, fmt.Errorf("failed to list destination roots: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan destination root: %w", err)
		}
		roots = append(roots, root)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating destination roots: %w", err)
	}
	return roots, nil
}

// UpdateStatus sets the status of a run, called at each state transition.
func (database *Database) UpdateStatus(id string, status models.ProvisioningStatus) error {
	query := `UPDATE provisionings SET status = ?, updated_at = ? WHERE id = ?`
	return database.execAffectingOne(id, "status", query, status, time.Now().UTC(), id)
}

// UpdateProgress stores the latest reported position of a running provisioning.
// this is the most frequent write, once per forwarded progress event.
func (database *Database) UpdateProgress(id string, event models.ProgressEvent) error {
	query := `
		UPDATE provisionings
		SET progress = ?, current_stage = ?, current_phase = ?, updated_at = ?
		WHERE id = ?
	`
	return database.execAffectingOne(id, "progress", query,
		event.Overall,
		event.Stage,
		event.Phase.String(),
		time.Now().UTC(),
		id,
	)
}

// CompleteProvisioning stores the terminal status and result of a run.
// committed final paths are stored even on failure so partial successes stay visible.
func (database *Database) CompleteProvisioning(id string, status models.ProvisioningStatus, result models.PipelineResult) error {
	finalPaths, err := encodeStageMap(result.FinalPaths)
	if err != nil {
		return err
	}
	commits, err := encodeStageMap(result.Commits)
	if err != nil {
		return err
	}

	query := `
		UPDATE provisionings
		SET status = ?, final_paths = ?, commits = ?, error_kind = ?, error_message = ?,
		    progress = CASE WHEN ? THEN 100 ELSE progress END,
		    updated_at = ?
		WHERE id = ?
	`
	return database.execAffectingOne(id, "result", query,
		status,
		finalPaths,
		commits,
		result.ErrorKind,
		result.ErrorMessage,
		result.Success,
		time.Now().UTC(),
		id,
	)
}

// MarkInterruptedRuns fails every run still pending or running.
// called once at startup: a run can not survive a restart of the process that drove it.
func (database *Database) MarkInterruptedRuns() (int64, error) {
	query := `
		UPDATE provisionings
		SET status = ?, error_kind = ?, error_message = ?, updated_at = ?
		WHERE status IN (?, ?)
	`
	result, err := database.connection.Exec(query,
		models.StatusFailed,
		models.ErrorKindInternal,
		interruptedMessage,
		time.Now().UTC(),
		models.StatusPending,
		models.StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted provisionings: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected for interrupted provisionings: %w", err)
	}
	if rowsAffected > 0 {
		database.logger.Warn("marked interrupted provisionings as failed", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// DeleteProvisioning removes a row by ID. files on disk are never touched here.
func (database *Database) DeleteProvisioning(id string) error {
	return database.execAffectingOne(id, "delete", `DELETE FROM provisionings WHERE id = ?`, id)
}

// execAffectingOne runs a statement that must match exactly the row with the given id.
// RowsAffected of 0 means the ID does not exist, which prevents silent no-ops.
func (database *Database) execAffectingOne(id, operation, query string, args ...any) error {
	result, err := database.connection.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s provisioning %q: %w", operation, id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for provisioning %q: %w", id, err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProvisioning(row scanner) (*models.Provisioning, error) {
	var provisioning models.Provisioning
	var finalPaths, commits sql.NullString

	err := row.Scan(
		&provisioning.ID,
		&provisioning.Slug,
		&provisioning.SourceVersion,
		&provisioning.RuntimeVariant,
		&provisioning.DestinationRoot,
		&provisioning.IncludeEnvironment, // INTEGER 0/1 -> bool
		&provisioning.Status,
		&provisioning.Progress,
		&provisioning.CurrentStage,
		&provisioning.CurrentPhase,
		&finalPaths, // NULL -> Valid false
		&commits,
		&provisioning.ErrorKind,
		&provisioning.ErrorMessage,
		&provisioning.CreatedAt,
		&provisioning.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if provisioning.FinalPaths, err = decodeStageMap(finalPaths); err != nil {
		return nil, err
	}
	if provisioning.Commits, err = decodeStageMap(commits); err != nil {
		return nil, err
	}
	return &provisioning, nil
}

// encodeStageMap turns a map into a JSON text column. an empty map is stored as NULL.
func encodeStageMap(stageMap map[models.StageName]string) (*string, error) {
	if len(stageMap) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(stageMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stage map: %w", err)
	}
	text := string(encoded)
	return &text, nil
}

func decodeStageMap(column sql.NullString) (map[models.StageName]string, error) {
	if !column.Valid || column.String == "" {
		return nil, nil
	}
	var stageMap map[models.StageName]string
	if err := json.Unmarshal([]byte(column.String), &stageMap); err != nil {
		return nil, fmt.Errorf("failed to decode stage map %q: %w", column.String, err)
	}
	return stageMap, nil
}

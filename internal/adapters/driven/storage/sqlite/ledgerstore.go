package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

// LedgerDB holds the append-only analysis ledger. Everything in it is
// keyed by opaque token; it can be deployed without identity.db present.
type LedgerDB struct {
	db   *sql.DB
	path string
}

// OpenLedgerDB opens ledger.db under dataDir, creating and migrating it
// as needed.
func OpenLedgerDB(dataDir string) (*LedgerDB, error) {
	fsys, err := fs.Sub(migrations.Ledger, "ledger")
	if err != nil {
		return nil, fmt.Errorf("locating ledger migrations: %w", err)
	}

	db, path, err := openDB(dataDir, "ledger.db", fsys)
	if err != nil {
		return nil, err
	}
	return &LedgerDB{db: db, path: path}, nil
}

// Close closes the database connection.
func (d *LedgerDB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *LedgerDB) Path() string {
	return d.path
}

// LedgerStore returns a LedgerStore backed by this database.
func (d *LedgerDB) LedgerStore() driven.LedgerStore {
	return &ledgerStore{db: d.db}
}

type ledgerStore struct {
	db *sql.DB
}

var _ driven.LedgerStore = (*ledgerStore)(nil)

// Append stores a new record. When a parent is referenced, the INSERT
// carries a WHERE EXISTS guard over the parent row, so the parent check
// and the insert are one atomic statement: the parent must live in the
// same case session with a strictly earlier timestamp.
func (s *ledgerStore) Append(ctx context.Context, record *domain.AnalysisRecord) error {
	input, err := json.Marshal(record.InputSnapshot)
	if err != nil {
		return fmt.Errorf("marshalling input snapshot: %w", err)
	}
	output, err := json.Marshal(record.OutputSnapshot)
	if err != nil {
		return fmt.Errorf("marshalling output snapshot: %w", err)
	}
	confidence, err := json.Marshal(record.ConfidenceScores)
	if err != nil {
		return fmt.Errorf("marshalling confidence scores: %w", err)
	}
	evidence, err := json.Marshal(record.EvidenceRefs)
	if err != nil {
		return fmt.Errorf("marshalling evidence refs: %w", err)
	}
	triggers, err := json.Marshal(record.EscalationTriggers)
	if err != nil {
		return fmt.Errorf("marshalling escalation triggers: %w", err)
	}

	columns := `id, agent_type, token, case_session, parent_id,
		input_snapshot, output_snapshot, confidence_scores,
		evidence_refs, escalation_triggers, processing_time_ms, created_at`
	args := []any{
		record.ID, record.AgentType, string(record.Token), record.CaseSession,
		nullString(record.ParentID), string(input), string(output),
		string(confidence), string(evidence), string(triggers),
		record.ProcessingTimeMS, record.CreatedAt.UnixNano(),
	}

	var result sql.Result
	if record.ParentID == nil {
		result, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO analysis_records (%s)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, columns), args...)
	} else {
		args = append(args, *record.ParentID, record.CaseSession, record.CreatedAt.UnixNano())
		result, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO analysis_records (%s)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE EXISTS (
				SELECT 1 FROM analysis_records
				WHERE id = ? AND case_session = ? AND created_at < ?
			)
		`, columns), args...)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return storeErr("appending record", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("checking append result", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: parent %s not found in case session %s with earlier timestamp",
			domain.ErrAcyclicity, *record.ParentID, record.CaseSession)
	}
	return nil
}

// Get retrieves a record by analysis id.
func (s *ledgerStore) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_type, token, case_session, parent_id,
			input_snapshot, output_snapshot, confidence_scores,
			evidence_refs, escalation_triggers, processing_time_ms, created_at
		FROM analysis_records WHERE id = ?
	`, id)

	record, err := scanRecordRow(row)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListByCaseSession returns all records for a case session, ordered by
// timestamp.
func (s *ledgerStore) ListByCaseSession(ctx context.Context, caseSession string) ([]domain.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_type, token, case_session, parent_id,
			input_snapshot, output_snapshot, confidence_scores,
			evidence_refs, escalation_triggers, processing_time_ms, created_at
		FROM analysis_records WHERE case_session = ?
		ORDER BY created_at
	`, caseSession)
	if err != nil {
		return nil, storeErr("querying case session", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByAgentType returns records for an agent type within a window.
func (s *ledgerStore) ListByAgentType(
	ctx context.Context,
	agentType string,
	window domain.Window,
) ([]domain.AnalysisRecord, error) {
	query := `
		SELECT id, agent_type, token, case_session, parent_id,
			input_snapshot, output_snapshot, confidence_scores,
			evidence_refs, escalation_triggers, processing_time_ms, created_at
		FROM analysis_records WHERE agent_type = ?
	`
	args := []any{agentType}
	if !window.From.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, window.From.UnixNano())
	}
	if !window.To.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, window.To.UnixNano())
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("querying agent records", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// scanRecordRow scans a record from *sql.Row.
func scanRecordRow(row *sql.Row) (*domain.AnalysisRecord, error) {
	var raw rawRecord
	if err := row.Scan(raw.targets()...); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("scanning record", err)
	}
	return raw.toDomain()
}

// scanRecords scans multiple record rows.
func scanRecords(rows *sql.Rows) ([]domain.AnalysisRecord, error) {
	var records []domain.AnalysisRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var raw rawRecord
		if err := rows.Scan(raw.targets()...); err != nil {
			return nil, storeErr("scanning record", err)
		}
		record, err := raw.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating records", err)
	}
	return records, nil
}

// rawRecord is the scan target for one analysis_records row.
type rawRecord struct {
	id, agentType, token, caseSession   string
	parentID                            sql.NullString
	input, output, confidence, evidence string
	triggers                            string
	processingTimeMS, createdAt         int64
}

func (r *rawRecord) targets() []any {
	return []any{
		&r.id, &r.agentType, &r.token, &r.caseSession, &r.parentID,
		&r.input, &r.output, &r.confidence, &r.evidence, &r.triggers,
		&r.processingTimeMS, &r.createdAt,
	}
}

func (r *rawRecord) toDomain() (*domain.AnalysisRecord, error) {
	record := &domain.AnalysisRecord{
		ID:               r.id,
		AgentType:        r.agentType,
		Token:            domain.Token(r.token),
		CaseSession:      r.caseSession,
		ProcessingTimeMS: r.processingTimeMS,
		CreatedAt:        time.Unix(0, r.createdAt).UTC(),
	}
	if r.parentID.Valid {
		record.ParentID = &r.parentID.String
	}

	if err := json.Unmarshal([]byte(r.input), &record.InputSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling input snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(r.output), &record.OutputSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling output snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(r.confidence), &record.ConfidenceScores); err != nil {
		return nil, fmt.Errorf("unmarshaling confidence scores: %w", err)
	}
	if err := json.Unmarshal([]byte(r.evidence), &record.EvidenceRefs); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence refs: %w", err)
	}
	if err := json.Unmarshal([]byte(r.triggers), &record.EscalationTriggers); err != nil {
		return nil, fmt.Errorf("unmarshaling escalation triggers: %w", err)
	}
	return record, nil
}

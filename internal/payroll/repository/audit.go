package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/internal/payroll/domain"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

// AuditRepository handles the payroll audit trail. Entries are written
// on every lifecycle action and only ever read back for admins.
type AuditRepository struct {
	db *database.DB
	q  database.Queryer
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db, q: db.DB}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *AuditRepository) WithTx(tx *sqlx.Tx) *AuditRepository {
	return &AuditRepository{db: r.db, q: tx}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}
	entry.TenantID = tenantID

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	query := `
		INSERT INTO payroll_audit_log (id, tenant_id, run_id, action, actor_id, actor_name, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err = r.q.QueryRowxContext(ctx, query,
		entry.ID, entry.TenantID, entry.RunID, entry.Action,
		entry.ActorID, entry.ActorName, detailsJSON,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// List lists the tenant's audit entries newest first.
func (r *AuditRepository) List(ctx context.Context, page, perPage int) ([]*domain.AuditEntry, int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.q.GetContext(ctx, &total, `SELECT COUNT(*) FROM payroll_audit_log WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, 0, mapErr(err)
	}

	query := `
		SELECT id, tenant_id, run_id, action, actor_id, actor_name, details, created_at
		FROM payroll_audit_log
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.QueryxContext(ctx, query, tenantID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var detailsJSON []byte

		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.RunID, &entry.Action,
			&entry.ActorID, &entry.ActorName, &detailsJSON, &entry.CreatedAt,
		); err != nil {
			return nil, 0, mapErr(err)
		}

		if len(detailsJSON) > 0 {
			json.Unmarshal(detailsJSON, &entry.Details)
		}

		entries = append(entries, &entry)
	}

	return entries, total, rows.Err()
}

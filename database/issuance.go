package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/sellolabs/sello/internal/apierror"
	"github.com/sellolabs/sello/model"

	_ "github.com/lib/pq"
)

const issuanceColumns = `issuance_id, verification_uuid, certificate_title, dependency, subject_document, subject_name, pdf_hash, metadata_url, status, status_note, COALESCE(transaction_hash, ''), issued_at, updated_at, meta_data`

// RecordIssuance persists a new issuance record. The record always starts
// out in the pending status regardless of what the caller set.
func (d Datasource) RecordIssuance(ctx context.Context, issuance *model.Issuance) (*model.Issuance, error) {
	ctx, span := otel.Tracer("issuance.database").Start(ctx, "Saving issuance to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(issuance.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	issuance.Status = model.StatusPending
	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO sello.issuances(issuance_id,verification_uuid,certificate_title,dependency,subject_document,subject_name,pdf_hash,metadata_url,status,status_note,issued_at,updated_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		issuance.IssuanceID, issuance.VerificationUUID, issuance.CertificateTitle, issuance.Dependency, issuance.SubjectDocument, issuance.SubjectName, issuance.PDFHash, issuance.MetadataURL, issuance.Status, issuance.StatusNote, issuance.IssuedAt, issuance.IssuedAt, metaDataJSON,
	)

	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record issuance", err)
	}

	return issuance, nil
}

func (d Datasource) GetIssuance(ctx context.Context, id string) (*model.Issuance, error) {
	ctx, span := otel.Tracer("issuance.database").Start(ctx, "Getting issuance from db")
	defer span.End()

	cacheKey := issuanceCacheKey(id)
	if cached := d.cachedIssuance(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sello.issuances
		WHERE issuance_id = $1
	`, issuanceColumns), id)

	issuance, err := scanIssuance(row, id)
	if err != nil {
		return nil, err
	}
	d.cacheIssuance(ctx, cacheKey, issuance)
	return issuance, nil
}

func (d Datasource) GetIssuanceByVerificationUUID(ctx context.Context, uuid string) (*model.Issuance, error) {
	ctx, span := otel.Tracer("issuance.database").Start(ctx, "Getting issuance from db by verification uuid")
	defer span.End()

	cacheKey := verificationCacheKey(uuid)
	if cached := d.cachedIssuance(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sello.issuances
		WHERE verification_uuid = $1
	`, issuanceColumns), uuid)

	issuance, err := scanIssuance(row, uuid)
	if err != nil {
		return nil, err
	}
	d.cacheIssuance(ctx, cacheKey, issuance)
	return issuance, nil
}

func issuanceCacheKey(id string) string {
	return fmt.Sprintf("issuance:%s", id)
}

func verificationCacheKey(uuid string) string {
	return fmt.Sprintf("issuance:verification:%s", uuid)
}

func (d Datasource) cachedIssuance(ctx context.Context, key string) *model.Issuance {
	if d.Cache == nil {
		return nil
	}
	issuance := &model.Issuance{}
	if err := d.Cache.Get(ctx, key, issuance); err == nil && issuance.IssuanceID != "" {
		return issuance
	}
	return nil
}

func (d Datasource) cacheIssuance(ctx context.Context, key string, issuance *model.Issuance) {
	if d.Cache == nil {
		return
	}
	if err := d.Cache.Set(ctx, key, issuance, 5*time.Minute); err != nil {
		// Log the error, but don't return it as the main operation succeeded.
		fmt.Printf("failed to cache issuance: %v\n", err)
	}
}

// UpdateIssuanceStatus records a lifecycle transition. An empty
// transactionHash leaves the stored hash untouched so a confirmation update
// never erases the hash persisted at submission time.
func (d Datasource) UpdateIssuanceStatus(ctx context.Context, id string, status string, note string, transactionHash string) error {
	ctx, span := otel.Tracer("issuance.database").Start(ctx, "Updating issuance status")
	defer span.End()

	var verificationUUID string
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE sello.issuances
		SET status = $2, status_note = $3, transaction_hash = COALESCE(NULLIF($4, ''), transaction_hash), updated_at = NOW()
		WHERE issuance_id = $1
		RETURNING verification_uuid
	`, id, status, note, transactionHash).Scan(&verificationUUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Issuance with ID '%s' not found", id), nil)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update issuance status", err)
	}

	if d.Cache != nil {
		for _, key := range []string{issuanceCacheKey(id), verificationCacheKey(verificationUUID)} {
			if err := d.Cache.Delete(ctx, key); err != nil {
				fmt.Printf("failed to invalidate issuance cache: %v\n", err)
			}
		}
	}

	return nil
}

func (d Datasource) GetAllIssuances(ctx context.Context, limit, offset int) ([]model.Issuance, error) {
	ctx, span := otel.Tracer("issuance.database").Start(ctx, "Listing issuances")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sello.issuances
		ORDER BY issued_at DESC
		LIMIT $1 OFFSET $2
	`, issuanceColumns), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve issuances", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			fmt.Printf("error closing rows: %v\n", closeErr)
		}
	}()

	var issuances []model.Issuance
	for rows.Next() {
		issuance, err := scanIssuanceRows(rows)
		if err != nil {
			return nil, err
		}
		issuances = append(issuances, *issuance)
	}

	return issuances, nil
}

// GetPendingIssuances returns records that were never broadcast and have not
// reached a terminal status, oldest first, for the resend-pending recovery
// sweep. Matching on the missing hash rather than the pending status alone
// picks up records a crash left in processing or retrying; those with a hash
// belong to the unconfirmed sweep instead.
func (d Datasource) GetPendingIssuances(ctx context.Context) ([]*model.Issuance, error) {
	ctx, span := otel.Tracer("issuance.database").Start(ctx, "Getting pending issuances")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sello.issuances
		WHERE transaction_hash IS NULL
		AND status NOT IN ($1, $2)
		ORDER BY issued_at ASC
	`, issuanceColumns), model.StatusCompleted, model.StatusError)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending issuances", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			fmt.Printf("error closing rows: %v\n", closeErr)
		}
	}()

	var issuances []*model.Issuance
	for rows.Next() {
		issuance, err := scanIssuanceRows(rows)
		if err != nil {
			return nil, err
		}
		issuances = append(issuances, issuance)
	}

	return issuances, nil
}

// GetUnconfirmedIssuances returns records that hold a transaction hash but
// never reached a terminal status and have not been touched for olderThan.
func (d Datasource) GetUnconfirmedIssuances(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Issuance, error) {
	ctx, span := otel.Tracer("issuance.database").Start(ctx, "Getting unconfirmed issuances")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sello.issuances
		WHERE status IN ($1, $2)
		AND transaction_hash IS NOT NULL
		AND updated_at < NOW() - $3 * INTERVAL '1 second'
		ORDER BY updated_at ASC
		LIMIT $4
	`, issuanceColumns), model.StatusProcessing, model.StatusRetrying, int(olderThan.Seconds()), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unconfirmed issuances", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			fmt.Printf("error closing rows: %v\n", closeErr)
		}
	}()

	var issuances []*model.Issuance
	for rows.Next() {
		issuance, err := scanIssuanceRows(rows)
		if err != nil {
			return nil, err
		}
		issuances = append(issuances, issuance)
	}

	return issuances, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIssuance(row *sql.Row, ref string) (*model.Issuance, error) {
	issuance, err := scanIssuanceRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Issuance '%s' not found", ref), err)
		}
		return nil, err
	}
	return issuance, nil
}

func scanIssuanceRow(row rowScanner) (*model.Issuance, error) {
	issuance := &model.Issuance{}
	var metaDataJSON []byte
	err := row.Scan(&issuance.IssuanceID, &issuance.VerificationUUID, &issuance.CertificateTitle, &issuance.Dependency, &issuance.SubjectDocument, &issuance.SubjectName, &issuance.PDFHash, &issuance.MetadataURL, &issuance.Status, &issuance.StatusNote, &issuance.TransactionHash, &issuance.IssuedAt, &issuance.UpdatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &issuance.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return issuance, nil
}

func scanIssuanceRows(rows *sql.Rows) (*model.Issuance, error) {
	issuance, err := scanIssuanceRow(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan issuance data", err)
	}
	return issuance, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RawIngestionRepo persists one row per successful connector call.
type RawIngestionRepo struct {
	pool *pgxpool.Pool
}

// Upsert inserts a raw ingestion, short-circuiting on the content-hash
// unique index instead of catching a duplicate-key exception: a
// pre-existing sha256 is an existence check, not an error (see DESIGN.md's
// note on replacing the upstream exception-for-control-flow pattern).
func (r *RawIngestionRepo) Upsert(ctx context.Context, raw model.RawIngestion) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO raw_ingestions (source, url, fetched_at, sha256, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sha256) DO UPDATE SET source = EXCLUDED.source
		RETURNING id
	`, raw.Source, raw.URL, raw.FetchedAt, raw.SHA256, raw.PayloadBlob).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert raw_ingestions: %w", err)
	}
	return id, nil
}

// ExtractedEntityRepo persists the Phase A/B output for audit, independent
// of whether the record survives into a final Entity row.
type ExtractedEntityRepo struct {
	pool *pgxpool.Pool
}

func (r *ExtractedEntityRepo) Insert(ctx context.Context, rawIngestionID int64, e model.ExtractedEntity) error {
	primitives, err := json.Marshal(e.Primitives)
	if err != nil {
		return fmt.Errorf("marshal primitives: %w", err)
	}
	dimensions, err := json.Marshal(map[string][]string{
		"canonical_activities":  e.CanonicalActivities,
		"canonical_roles":       e.CanonicalRoles,
		"canonical_place_types": e.CanonicalPlaceTypes,
		"canonical_access":      e.CanonicalAccess,
	})
	if err != nil {
		return fmt.Errorf("marshal dimensions: %w", err)
	}
	modules, err := json.Marshal(e.Modules)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	confidence, err := json.Marshal(e.ConfidenceByField)
	if err != nil {
		return fmt.Errorf("marshal confidence_by_field: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO extracted_entities (raw_ingestion_id, source, entity_class, primitives, dimensions, modules, confidence_by_field)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rawIngestionID, e.Source, string(e.EntityClass), primitives, dimensions, modules, confidence)
	if err != nil {
		return fmt.Errorf("insert extracted_entities: %w", err)
	}
	return nil
}

// EntityRepo persists final, merged entities keyed by slug.
type EntityRepo struct {
	pool *pgxpool.Pool
}

// Upsert is the single persistence primitive for final entities: a
// unique-slug conflict updates the existing row rather than erroring,
// satisfying the "count of entities with a given slug is always ≤ 1"
// invariant without an application-level locking scheme.
func (r *EntityRepo) Upsert(ctx context.Context, e model.Entity) error {
	modules, err := json.Marshal(e.Modules)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	sourceInfo, err := json.Marshal(e.SourceInfo)
	if err != nil {
		return fmt.Errorf("marshal source_info: %w", err)
	}
	externalIDs, err := json.Marshal(e.ExternalIDs)
	if err != nil {
		return fmt.Errorf("marshal external_ids: %w", err)
	}
	dimensions := allDimensions(e)

	_, err = r.pool.Exec(ctx, `
		INSERT INTO entities (
			slug, entity_class, entity_name, latitude, longitude,
			street_address, city, postcode, country, phone, email, website_url,
			dimensions, modules, source_info, external_ids, discovered_by, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (slug) DO UPDATE SET
			entity_class = EXCLUDED.entity_class,
			entity_name = EXCLUDED.entity_name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			street_address = EXCLUDED.street_address,
			city = EXCLUDED.city,
			postcode = EXCLUDED.postcode,
			country = EXCLUDED.country,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			website_url = EXCLUDED.website_url,
			dimensions = EXCLUDED.dimensions,
			modules = EXCLUDED.modules,
			source_info = EXCLUDED.source_info,
			external_ids = EXCLUDED.external_ids,
			discovered_by = EXCLUDED.discovered_by,
			updated_at = EXCLUDED.updated_at
	`,
		e.Slug, string(e.EntityClass), e.Primitives.EntityName, e.Primitives.Latitude, e.Primitives.Longitude,
		e.Primitives.StreetAddress, e.Primitives.City, e.Primitives.Postcode, e.Primitives.Country,
		e.Primitives.Phone, e.Primitives.Email, e.Primitives.WebsiteURL,
		dimensions, modules, sourceInfo, externalIDs, e.DiscoveredBy, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert entities: %w", err)
	}
	return nil
}

func allDimensions(e model.Entity) []string {
	out := make([]string, 0, len(e.CanonicalActivities)+len(e.CanonicalRoles)+len(e.CanonicalPlaceTypes)+len(e.CanonicalAccess))
	out = append(out, e.CanonicalActivities...)
	out = append(out, e.CanonicalRoles...)
	out = append(out, e.CanonicalPlaceTypes...)
	out = append(out, e.CanonicalAccess...)
	return out
}

// FailedExtractionRepo persists per-rule extraction failures for audit.
type FailedExtractionRepo struct {
	pool *pgxpool.Pool
}

// FailedExtractionRecord is the persistence-layer shape of one recorded
// rule failure, decoupled from extract.FailedRule so this package does
// not import the extract package.
type FailedExtractionRecord struct {
	RawIngestionID *int64
	RuleID         string
	Kind           string
	Message        string
	OccurredAt     time.Time
}

func (r *FailedExtractionRepo) Insert(ctx context.Context, rec FailedExtractionRecord) error {
	var ruleID *string
	if rec.RuleID != "" {
		ruleID = &rec.RuleID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO failed_extractions (raw_ingestion_id, rule_id, kind, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.RawIngestionID, ruleID, rec.Kind, rec.Message, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert failed_extractions: %w", err)
	}
	return nil
}

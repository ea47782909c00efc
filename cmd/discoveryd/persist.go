package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/extract"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/store"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/store/rawfile"
)

// persistAuditTrail upserts every raw ingestion the run fetched, offloading
// any payload over rawfile.Threshold to disk first, inserts one
// extracted_entities row per post-Phase-B candidate keyed to its raw
// ingestion, and flushes every per-rule extraction failure recorded during
// the run. It runs before the final entities are persisted so that audit
// rows exist even if a later step fails.
func persistAuditTrail(
	ctx context.Context,
	client *store.Client,
	rawDataDir string,
	rawIngestions []model.RawIngestion,
	candidates []model.ExtractedEntity,
	failures []extract.FailedRule,
) error {
	rawIDs, err := persistRawIngestions(ctx, client, rawDataDir, rawIngestions)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		id, ok := rawIDs[c.RawIngestionRef]
		if !ok {
			// Produced without a tracked fetch (e.g. a test double); nothing
			// to key the audit row to.
			continue
		}
		if err := client.ExtractedEntities.Insert(ctx, id, c); err != nil {
			return fmt.Errorf("persisting extracted entity from %s: %w", c.Source, err)
		}
	}

	for _, f := range failures {
		rec := store.FailedExtractionRecord{
			RuleID:     f.RuleID,
			Kind:       f.Kind,
			Message:    f.Message,
			OccurredAt: time.Now(),
		}
		if id, ok := rawIDs[f.RawIngestionRef]; ok {
			rec.RawIngestionID = &id
		}
		if err := client.FailedExtractions.Insert(ctx, rec); err != nil {
			return fmt.Errorf("persisting failed extraction %s: %w", f.RuleID, err)
		}
	}

	return nil
}

// persistRawIngestions upserts raw, offloading oversized payloads to
// rawDataDir and replacing the inline payload with a small pointer object
// recording where the bytes actually live. It returns the sha256 -> row id
// mapping that extracted_entities and failed_extractions rows join against.
func persistRawIngestions(ctx context.Context, client *store.Client, rawDataDir string, rawIngestions []model.RawIngestion) (map[string]int64, error) {
	rawIDs := make(map[string]int64, len(rawIngestions))
	for _, raw := range rawIngestions {
		if rawfile.ShouldOffload(len(raw.PayloadBlob)) {
			_, path, err := rawfile.Store(rawDataDir, raw.Source, raw.FetchedAt, raw.PayloadBlob)
			if err != nil {
				return nil, fmt.Errorf("offloading raw payload from %s: %w", raw.Source, err)
			}
			pointer, err := json.Marshal(map[string]string{"offload_path": path})
			if err != nil {
				return nil, fmt.Errorf("marshal offload pointer: %w", err)
			}
			raw.PayloadBlob = pointer
		}

		id, err := client.RawIngestions.Upsert(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("persisting raw ingestion from %s: %w", raw.Source, err)
		}
		rawIDs[raw.SHA256] = id
	}
	return rawIDs, nil
}

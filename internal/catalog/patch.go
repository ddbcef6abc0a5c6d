package catalog

import (
	"fmt"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ApplyPatch merges patch (RFC 7396) into the stored document current, which
// may be nil for a new product. The slug and timestamps are always set by
// the server; created_at is kept once present.
func ApplyPatch(current []byte, slug string, patch []byte, now time.Time) ([]byte, error) {
	if !gjson.ValidBytes(patch) || !gjson.ParseBytes(patch).IsObject() {
		return nil, ErrInvalidPatch
	}
	if len(current) == 0 {
		current = []byte("{}")
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to merge patch: %w", err)
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	if merged, err = sjson.SetBytes(merged, "slug", slug); err != nil {
		return nil, fmt.Errorf("failed to set slug: %w", err)
	}
	if merged, err = sjson.SetBytes(merged, "updated_at", stamp); err != nil {
		return nil, fmt.Errorf("failed to set updated_at: %w", err)
	}
	if !gjson.GetBytes(merged, "created_at").Exists() {
		if merged, err = sjson.SetBytes(merged, "created_at", stamp); err != nil {
			return nil, fmt.Errorf("failed to set created_at: %w", err)
		}
	}

	if strings.TrimSpace(gjson.GetBytes(merged, "name").String()) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if gjson.GetBytes(merged, "price_cents").Int() < 0 {
		return nil, fmt.Errorf("%w: price_cents must not be negative", ErrInvalidProduct)
	}
	return merged, nil
}

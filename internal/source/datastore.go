package source

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hdbdash/internal/core"
)

// datastoreResponse mirrors the envelope of a CKAN datastore_search reply.
// Pointers distinguish a missing field from an empty one.
type datastoreResponse struct {
	Success *bool `json:"success"`
	Result  *struct {
		Records *[]map[string]any `json:"records"`
		Total   int               `json:"total"`
	} `json:"result"`
}

// DecodeRecords reads a datastore_search body and returns its
// result.records. A body that is not JSON, or lacks result.records, is an
// error; an empty records array is not.
func DecodeRecords(r io.Reader) ([]core.Record, error) {
	var resp datastoreResponse
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", core.ErrMalformedResponse, err)
	}
	if resp.Result == nil || resp.Result.Records == nil {
		return nil, fmt.Errorf("%w: missing result.records", core.ErrMalformedResponse)
	}

	raw := *resp.Result.Records
	out := make([]core.Record, 0, len(raw))
	for _, fields := range raw {
		out = append(out, recordFromFields(fields))
	}
	return out, nil
}

func recordFromFields(fields map[string]any) core.Record {
	rec := core.Record{
		Month:             field(fields, "month"),
		Town:              field(fields, "town"),
		FlatType:          field(fields, "flat_type"),
		Block:             field(fields, "block"),
		StreetName:        field(fields, "street_name"),
		StoreyRange:       field(fields, "storey_range"),
		FloorAreaSqm:      field(fields, "floor_area_sqm"),
		FlatModel:         field(fields, "flat_model"),
		LeaseCommenceDate: field(fields, "lease_commence_date"),
		RemainingLease:    field(fields, "remaining_lease"),
		ResalePrice:       field(fields, "resale_price"),
	}
	if id, err := strconv.ParseInt(field(fields, "_id"), 10, 64); err == nil {
		rec.ID = id
	}
	return rec
}

// field renders any JSON scalar as a trimmed string; upstream is not
// consistent about quoting numbers.
func field(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

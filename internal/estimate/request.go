package estimate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
)

type rawRequest struct {
	AreaRelationships *[]rawRelationship `json:"area_relationships"`
}

type rawRelationship struct {
	Area       string          `json:"area"`
	Percentage json.RawMessage `json:"percentage"`
}

// DecodeRequest parses a {"area_relationships": [...]} body. A missing or null
// list is ErrMissingArgument. A percentage may be a JSON number or a numeric
// string; a missing one counts as 0.
func DecodeRequest(body []byte) ([]Relationship, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, eris.Wrap(census.ErrMissingArgument, "estimate: missing area relationships data")
	}

	var req rawRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, eris.Wrapf(census.ErrInvalidArgument, "estimate: decode request: %v", err)
	}
	if req.AreaRelationships == nil {
		return nil, eris.Wrap(census.ErrMissingArgument, "estimate: missing area relationships data")
	}

	rels := make([]Relationship, 0, len(*req.AreaRelationships))
	for i, raw := range *req.AreaRelationships {
		pct, err := parsePercentage(raw.Percentage)
		if err != nil {
			return nil, eris.Wrapf(err, "estimate: relationship %d (%q)", i, raw.Area)
		}
		rels = append(rels, Relationship{Area: raw.Area, Percentage: pct})
	}
	return rels, nil
}

func parsePercentage(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, eris.Wrapf(census.ErrInvalidArgument, "malformed percentage %s", s)
		}
		s = strings.TrimSpace(str)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(census.ErrInvalidArgument, "malformed percentage %s", string(raw))
	}
	if err := ValidatePercentage(f); err != nil {
		return 0, err
	}
	return f, nil
}

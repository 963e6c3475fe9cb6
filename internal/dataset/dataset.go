package dataset

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	appLog "github.com/zakhtar8/aamalcalendar/internal/log"
	"github.com/zakhtar8/aamalcalendar/internal/model"
)

//go:embed data/aamaal.json
var embeddedDataset []byte

// Meta is the metadata block of a rule dataset document.
type Meta struct {
	Title    string `json:"title"`
	Version  int    `json:"version"`
	Language string `json:"language,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Dataset is a parsed observance-rule document. Rules keep their document
// order; the expander emits events in that order before deduplication.
type Dataset struct {
	Meta  Meta                   `json:"meta"`
	Rules []model.ObservanceRule `json:"rules"`
}

// Load reads and parses the dataset at path. An empty path loads the
// embedded default document.
func Load(path string) (*Dataset, error) {
	if path == "" {
		ds, err := Parse(embeddedDataset)
		if err != nil {
			// The embedded document ships with the binary; failing to parse
			// it is a build defect, not a runtime condition.
			return nil, fmt.Errorf("embedded dataset: %w", err)
		}
		appLog.Info("dataset loaded", "source", "embedded", "rules", len(ds.Rules))
		return ds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	appLog.Info("dataset loaded", "source", path, "rules", len(ds.Rules))
	return ds, nil
}

// Parse decodes a dataset document and normalizes it for use:
//
//   - month names are folded via NormalizeMonth
//   - unknown rule kinds coerce to "unspecified" (the expander's fallback
//     range path), unknown periods pass through (treated as all-day)
//   - rules without an ID are dropped, since event IDs derive from them
func Parse(data []byte) (*Dataset, error) {
	if len(data) == 0 {
		return nil, errors.New("empty dataset document")
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, err
	}
	if len(ds.Rules) == 0 {
		return nil, errors.New("dataset has no rules")
	}

	out := make([]model.ObservanceRule, 0, len(ds.Rules))
	for _, r := range ds.Rules {
		if r.ID == "" {
			appLog.Warn("dataset rule without id skipped", "month", r.Month, "label", r.Label)
			continue
		}
		r.Month = NormalizeMonth(r.Month)
		if !knownKind(r.Kind) {
			appLog.Warn("dataset rule with unknown kind treated as unspecified", "id", r.ID, "kind", r.Kind)
			r.Kind = model.KindUnspecified
		}
		out = append(out, r)
	}
	ds.Rules = out

	return &ds, nil
}

func knownKind(k model.RuleKind) bool {
	switch k {
	case model.KindSpecific, model.KindRange, model.KindMonthAll, model.KindMonthAnyTime,
		model.KindWeekday, model.KindWeekdayMulti, model.KindNightGeneral, model.KindUnspecified:
		return true
	}
	return false
}

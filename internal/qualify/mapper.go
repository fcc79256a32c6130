package qualify

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/icp-qualifier/internal/model"
	"github.com/sells-group/icp-qualifier/internal/profile"
)

// MapResult maps a parsed model verdict onto the profile's result columns.
// The qualification boolean defaults to false, confidence to "low", free-text
// fields to "", and an out-of-enum style to "Mixed". A non-empty company_name
// from the model overwrites the input's Company Name cell.
func MapResult(result map[string]any, p *profile.Profile, useScreenshots bool, now time.Time) model.Record {
	rec := model.Record{
		model.ColStatus:     string(model.StatusAnalyzed),
		model.ColAnalyzedAt: timestamp(now),
	}

	rec[p.QualifyKey] = strconv.FormatBool(boolValue(result, p.QualifyKey))
	rec["confidence"] = stringValue(result, "confidence", "low")

	styleActive := p.HasStyle && useScreenshots
	for _, key := range p.JSONKeys {
		if key == p.QualifyKey {
			continue
		}
		if key == "website_style" {
			if styleActive {
				raw := stringValue(result, key, "")
				if !profile.ValidStyles[raw] {
					raw = profile.StyleMixed
				}
				rec[key] = raw
			}
			continue
		}
		rec[key] = stringValue(result, key, "")
	}

	if name := strings.TrimSpace(stringValue(result, "company_name", "")); name != "" {
		rec[model.ColCompanyName] = name
	}
	return rec
}

// UnreachableRecord marks a row whose website yielded neither text nor
// screenshot. No qualification fields are set.
func UnreachableRecord(now time.Time) model.Record {
	return model.Record{
		model.ColStatus:     string(model.StatusUnreachable),
		model.ColAnalyzedAt: timestamp(now),
	}
}

// ErrorRecord marks a row whose model call failed. No qualification fields
// are set.
func ErrorRecord(now time.Time) model.Record {
	return model.Record{
		model.ColStatus:     string(model.StatusError),
		model.ColAnalyzedAt: timestamp(now),
	}
}

// Qualified reports whether a mapped record carries a positive verdict for
// the profile's qualification boolean.
func Qualified(rec model.Record, p *profile.Profile) bool {
	return rec[p.QualifyKey] == "true"
}

func timestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

func boolValue(result map[string]any, key string) bool {
	switch v := result[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func stringValue(result map[string]any, key, fallback string) string {
	v, ok := result[key]
	if !ok || v == nil {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

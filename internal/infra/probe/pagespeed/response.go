package pagespeed

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// apiResponse is the subset of the runPagespeed v5 response we consume.
type apiResponse struct {
	LighthouseResult *lighthouseResult `json:"lighthouseResult"`
	Error            *apiError         `json:"error"`
}

type lighthouseResult struct {
	Audits     map[string]apiAudit    `json:"audits"`
	Categories map[string]apiCategory `json:"categories"`
}

type apiAudit struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Score       json.RawMessage `json:"score"`
	Details     *apiDetails     `json:"details"`
}

type apiDetails struct {
	Items            []json.RawMessage `json:"items"`
	OverallSavingsMs *float64          `json:"overallSavingsMs"`
}

type apiItem struct {
	URL  json.RawMessage `json:"url"`
	Node *struct {
		Selector string `json:"selector"`
	} `json:"node"`
}

type apiCategory struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Score json.RawMessage `json:"score"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// numeric decodes a nullable JSON number. Anything that is not a number is nil.
func numeric(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == 'n' || raw[0] == '"' || raw[0] == 't' || raw[0] == 'f' {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

func toItem(raw json.RawMessage) (sitehealth.RawItem, bool) {
	var it apiItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return sitehealth.RawItem{}, false
	}
	var out sitehealth.RawItem
	if len(it.URL) > 0 {
		var s string
		if err := json.Unmarshal(it.URL, &s); err == nil {
			out.URL = s
		}
	}
	if it.Node != nil {
		out.Selector = it.Node.Selector
	}
	return out, true
}

// toProbeResult converts the API document into the domain result. Map keys
// are sorted so results are deterministic.
func (lr *lighthouseResult) toProbeResult() *sitehealth.ProbeResult {
	res := &sitehealth.ProbeResult{}
	if lr == nil {
		return res
	}

	ids := make([]string, 0, len(lr.Audits))
	for id := range lr.Audits {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := lr.Audits[id]
		ra := sitehealth.RawAudit{
			ID:          id,
			Title:       a.Title,
			Description: a.Description,
			Score:       numeric(a.Score),
		}
		if a.Details != nil {
			for _, raw := range a.Details.Items {
				if it, ok := toItem(raw); ok {
					ra.Items = append(ra.Items, it)
				}
			}
			ra.OverallSavingsMs = a.Details.OverallSavingsMs
		}
		res.Audits = append(res.Audits, ra)
	}

	keys := make([]string, 0, len(lr.Categories))
	for k := range lr.Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c := lr.Categories[k]
		res.Categories = append(res.Categories, sitehealth.RawCategory{
			Key:   k,
			Title: c.Title,
			Score: numeric(c.Score),
		})
	}

	return res
}

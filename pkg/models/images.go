package models

import "encoding/json"

// DecodeImages decodes a stored image column into its display form.
// Structured entries keep their stored id; legacy bare-string entries (old
// rows written before the list was normalized) get a positional id.
func DecodeImages(raw string) []Image {
	out := []Image{}
	if raw == "" {
		return out
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return out
	}

	for i, e := range entries {
		var obj struct {
			ID  *int   `json:"id"`
			URL string `json:"url"`
		}
		if err := json.Unmarshal(e, &obj); err == nil {
			id := i + 1
			if obj.ID != nil {
				id = *obj.ID
			}
			out = append(out, Image{ID: id, URL: obj.URL})
			continue
		}

		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			out = append(out, Image{ID: i + 1, URL: s})
		}
	}
	return out
}

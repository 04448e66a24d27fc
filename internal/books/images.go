package books

import (
	"encoding/json"

	"bookhub/pkg/models"
)

// Image-list reconciliation for book create/update: remove entries by id,
// append new uploads with max-based ids, serialize normalized so every
// stored entry is a structured {id, url} object.

// imageEntry is the persistence-side view of one stored list entry. Legacy
// entries (bare strings, or objects without an id key) carry no stored id:
// they never match a removal request and count as 0 in the max scan.
type imageEntry struct {
	img   models.Image
	hasID bool
}

func parseImageEntries(raw string) []imageEntry {
	out := []imageEntry{}
	if raw == "" {
		return out
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return out
	}

	for _, e := range entries {
		var obj struct {
			ID  *int   `json:"id"`
			URL string `json:"url"`
		}
		if err := json.Unmarshal(e, &obj); err == nil {
			ent := imageEntry{img: models.Image{URL: obj.URL}}
			if obj.ID != nil {
				ent.img.ID = *obj.ID
				ent.hasID = true
			}
			out = append(out, ent)
			continue
		}

		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			out = append(out, imageEntry{img: models.Image{URL: s}})
		}
	}
	return out
}

// removeImages drops entries whose stored id is in removeIDs, preserving
// order and closing gaps. Ids absent from the list are a no-op. The removed
// entries are returned so the caller can delete their files.
func removeImages(list []imageEntry, removeIDs []int) (kept []imageEntry, removed []models.Image) {
	if len(removeIDs) == 0 {
		return list, nil
	}

	drop := make(map[int]bool, len(removeIDs))
	for _, id := range removeIDs {
		drop[id] = true
	}

	kept = make([]imageEntry, 0, len(list))
	for _, e := range list {
		if e.hasID && drop[e.img.ID] {
			removed = append(removed, e.img)
			continue
		}
		kept = append(kept, e)
	}
	return kept, removed
}

func maxImageID(list []imageEntry) int {
	max := 0
	for _, e := range list {
		if e.hasID && e.img.ID > max {
			max = e.img.ID
		}
	}
	return max
}

// appendImage adds a newly uploaded image with id max+1. The max is
// recomputed against the list as it stands, so two uploads in one batch get
// max+1 and max+2.
func appendImage(list []imageEntry, url string) []imageEntry {
	return append(list, imageEntry{
		img:   models.Image{ID: maxImageID(list) + 1, URL: url},
		hasID: true,
	})
}

// encodeImages serializes the list in normalized form. Any legacy entry
// still present is assigned a fresh max-based id here, so readers of the
// stored column never see an entry without one.
func encodeImages(list []imageEntry) (string, error) {
	out := make([]models.Image, 0, len(list))
	next := maxImageID(list) + 1
	for _, e := range list {
		if !e.hasID {
			e.img.ID = next
			next++
		}
		out = append(out, e.img)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

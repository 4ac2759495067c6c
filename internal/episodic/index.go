package episodic

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Index is the structured episode index.
type Index struct {
	Episodes []Summary           `json:"episodes"`
	Tags     map[string][]string `json:"tags"`
	Projects map[string][]string `json:"projects"`
}

func newIndex() *Index {
	return &Index{
		Episodes: []Summary{},
		Tags:     map[string][]string{},
		Projects: map[string][]string{},
	}
}

// legacyEntry is one value of the flat id-keyed index format.
type legacyEntry struct {
	Task       string   `json:"task"`
	Tags       []string `json:"tags"`
	Success    bool     `json:"success"`
	Importance *int     `json:"importance"`
	Timestamp  string   `json:"timestamp"`
	Project    string   `json:"project"`
}

// decodeIndex parses either index format. migrated reports that the
// document was not already in clean structured form and must be rewritten.
func decodeIndex(data []byte) (idx *Index, migrated bool, err error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, false, fmt.Errorf("decoding episode index: %w", err)
	}

	idx = newIndex()
	if raw, ok := top["episodes"]; ok {
		if err := json.Unmarshal(raw, &idx.Episodes); err != nil {
			return nil, false, fmt.Errorf("decoding episode index: %w", err)
		}
		if raw, ok := top["tags"]; ok {
			if err := json.Unmarshal(raw, &idx.Tags); err != nil {
				return nil, false, fmt.Errorf("decoding tag index: %w", err)
			}
		}
		if raw, ok := top["projects"]; ok {
			if err := json.Unmarshal(raw, &idx.Projects); err != nil {
				return nil, false, fmt.Errorf("decoding project index: %w", err)
			}
		}
		if idx.Episodes == nil {
			idx.Episodes = []Summary{}
		}
		if idx.Tags == nil {
			idx.Tags = map[string][]string{}
		}
		if idx.Projects == nil {
			idx.Projects = map[string][]string{}
		}
	}

	// Flat entries, either the whole legacy document or stragglers written
	// beside a structured index, are folded into the log.
	known := idx.ids()
	var folded []Summary
	for key, raw := range top {
		if !strings.HasPrefix(key, idPrefix) || known[key] {
			continue
		}
		var entry legacyEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		importance := DefaultImportance
		if entry.Importance != nil {
			importance = *entry.Importance
		}
		folded = append(folded, Summary{
			ID:         key,
			Timestamp:  parseTimestamp(entry.Timestamp),
			Task:       truncate(entry.Task, summaryTaskLen),
			Project:    entry.Project,
			Success:    entry.Success,
			Importance: importance,
			Tags:       entry.Tags,
		})
	}
	if len(folded) > 0 {
		sortSummaries(folded)
		idx.Episodes = append(idx.Episodes, folded...)
		idx.reindex()
		migrated = true
	}

	if _, structured := top["episodes"]; !structured {
		migrated = true
	}
	return idx, migrated, nil
}

// parseTimestamp accepts RFC 3339 and the naive ISO forms older tools wrote.
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func sortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].Timestamp.Equal(s[j].Timestamp) {
			return s[i].Timestamp.Before(s[j].Timestamp)
		}
		return s[i].ID < s[j].ID
	})
}

func (idx *Index) ids() map[string]bool {
	ids := make(map[string]bool, len(idx.Episodes))
	for _, s := range idx.Episodes {
		ids[s.ID] = true
	}
	return ids
}

func (idx *Index) find(id string) (Summary, bool) {
	for _, s := range idx.Episodes {
		if s.ID == id {
			return s, true
		}
	}
	return Summary{}, false
}

// add appends a summary and references it from its project and tags.
func (idx *Index) add(s Summary) {
	idx.Episodes = append(idx.Episodes, s)
	for _, tag := range s.Tags {
		idx.Tags[tag] = appendUnique(idx.Tags[tag], s.ID)
	}
	idx.Projects[s.Project] = appendUnique(idx.Projects[s.Project], s.ID)
}

// remove drops every reference to id. It reports whether id was in the log.
func (idx *Index) remove(id string) bool {
	found := false
	kept := idx.Episodes[:0]
	for _, s := range idx.Episodes {
		if s.ID == id {
			found = true
			continue
		}
		kept = append(kept, s)
	}
	idx.Episodes = kept
	removeRef(idx.Tags, id)
	removeRef(idx.Projects, id)
	return found
}

// consistent checks the index invariant.
func (idx *Index) consistent() bool {
	ids := idx.ids()
	if len(ids) != len(idx.Episodes) {
		return false // duplicate summaries
	}
	for _, refs := range []map[string][]string{idx.Tags, idx.Projects} {
		for _, list := range refs {
			if len(list) == 0 {
				return false
			}
			for _, id := range list {
				if !ids[id] {
					return false
				}
			}
		}
	}
	for _, s := range idx.Episodes {
		if !contains(idx.Projects[s.Project], s.ID) {
			return false
		}
		for _, tag := range s.Tags {
			if !contains(idx.Tags[tag], s.ID) {
				return false
			}
		}
	}
	return true
}

// reindex drops duplicate summaries (first wins) and regenerates the
// inverted indices from the log.
func (idx *Index) reindex() {
	seen := make(map[string]bool, len(idx.Episodes))
	episodes := make([]Summary, 0, len(idx.Episodes))
	for _, s := range idx.Episodes {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		episodes = append(episodes, s)
	}
	idx.Episodes = make([]Summary, 0, len(episodes))
	idx.Tags = map[string][]string{}
	idx.Projects = map[string][]string{}
	for _, s := range episodes {
		idx.add(s)
	}
}

// TagNames returns the sorted tag keys.
func (idx *Index) TagNames() []string {
	return sortedKeys(idx.Tags, false)
}

// ProjectNames returns the sorted non-empty project keys.
func (idx *Index) ProjectNames() []string {
	return sortedKeys(idx.Projects, true)
}

func sortedKeys(m map[string][]string, skipEmpty bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if skipEmpty && k == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(list []string, id string) []string {
	if contains(list, id) {
		return list
	}
	return append(list, id)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func removeRef(refs map[string][]string, id string) {
	for key, list := range refs {
		kept := list[:0]
		for _, v := range list {
			if v != id {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(refs, key)
		} else {
			refs[key] = kept
		}
	}
}

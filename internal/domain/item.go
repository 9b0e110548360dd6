package domain

import "encoding/json"

// Item is a reference to a single source or output item flowing through a
// workflow. Properties carries the item's loosely-typed metadata; fields this
// core does not model are preserved opaquely across marshal/unmarshal.
type Item struct {
	ID         string
	Collection string
	Properties map[string]any

	extra map[string]json.RawMessage
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &i.ID); err != nil {
			return err
		}
		delete(raw, "id")
	}
	if v, ok := raw["collection"]; ok {
		if err := json.Unmarshal(v, &i.Collection); err != nil {
			return err
		}
		delete(raw, "collection")
	}
	if v, ok := raw["properties"]; ok {
		if err := json.Unmarshal(v, &i.Properties); err != nil {
			return err
		}
		delete(raw, "properties")
	}
	if len(raw) > 0 {
		i.extra = raw
	}
	return nil
}

func (i Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(i.extra)+3)
	for k, v := range i.extra {
		out[k] = v
	}
	out["id"] = i.ID
	if i.Collection != "" {
		out["collection"] = i.Collection
	}
	if i.Properties != nil {
		out["properties"] = i.Properties
	}
	return json.Marshal(out)
}

// Property returns a property value by key, or nil when absent.
func (i Item) Property(key string) any {
	if i.Properties == nil {
		return nil
	}
	return i.Properties[key]
}

func (i Item) stringProperty(key string) string {
	if v, ok := i.Property(key).(string); ok {
		return v
	}
	return ""
}

// TemporalExtent returns the start and end datetimes covered by a set of
// items, derived from their start_datetime/end_datetime properties with
// datetime as a fallback. Either value may be empty when the items carry no
// temporal metadata.
func TemporalExtent(items []Item) (start, end string) {
	for _, item := range items {
		s := item.stringProperty("start_datetime")
		if s == "" {
			s = item.stringProperty("datetime")
		}
		if s != "" && (start == "" || s < start) {
			start = s
		}
		e := item.stringProperty("end_datetime")
		if e == "" {
			e = item.stringProperty("datetime")
		}
		if e != "" && (end == "" || e > end) {
			end = e
		}
	}
	return start, end
}

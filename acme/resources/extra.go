package resources

import "encoding/json"

// Extra is a field of Account, Order, Authorization, Challenge and
// Directory that preserves fields the server sent that this library doesn't
// have a named struct member for, so that forward-compatible server
// extensions survive an unmarshal/marshal round trip instead of being
// silently dropped. Problem, Identifier and DirectoryMeta have no Extra
// field: unknown members of those objects are dropped on unmarshal.
type Extra map[string]json.RawMessage

// mergeKnownFields marshals known into JSON, then overlays extra's entries
// for any key known doesn't already define, returning the combined object.
// Used by each resource's MarshalJSON to re-emit pass-through fields.
func mergeKnownFields(known interface{}, extra Extra) ([]byte, error) {
	knownJSON, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return knownJSON, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, present := merged[k]; !present {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// splitKnownFields unmarshals raw into known via its normal struct tags,
// then returns an Extra map of every top-level key present in raw but not
// consumed by known's JSON tags.
func splitKnownFields(raw []byte, known interface{}, knownKeys map[string]bool) (Extra, error) {
	if err := json.Unmarshal(raw, known); err != nil {
		return nil, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}

	extra := Extra{}
	for k, v := range all {
		if !knownKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}

package model

// CloudInit is the per-container nocloud seed content. When Template is set,
// the resolved value is the deep merge of the named template with this
// struct's own fields: mappings merge recursively, scalars/sequences at
// a key are replaced by the override, and an absent override inherits the
// template's value. Resolution clears Template on the resolved copy, never
// on the record the store owns.
type CloudInit struct {
	MetaData      map[string]any `yaml:"meta_data,omitempty"`
	UserData      string         `yaml:"user_data,omitempty"`
	NetworkConfig string         `yaml:"network_config,omitempty"`
	Template      string         `yaml:"template,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result (e.g. clearing
// Template, forcing local-hostname) without touching a shared record.
func (c CloudInit) Clone() CloudInit {
	out := CloudInit{
		UserData:      c.UserData,
		NetworkConfig: c.NetworkConfig,
		Template:      c.Template,
	}
	if c.MetaData != nil {
		out.MetaData = deepCopyMap(c.MetaData)
	}
	return out
}

// MergeCloudInit deep-merges override onto template: mappings merge key by
// key and recurse into nested mappings; any other value at a key (scalar or
// sequence) is replaced wholesale by the override's value; keys absent from
// the override inherit the template's value. The returned value has Template
// cleared.
func MergeCloudInit(template, override CloudInit) CloudInit {
	merged := CloudInit{
		MetaData: deepMergeMap(template.MetaData, override.MetaData),
	}

	merged.UserData = template.UserData
	if override.UserData != "" {
		merged.UserData = override.UserData
	}

	merged.NetworkConfig = template.NetworkConfig
	if override.NetworkConfig != "" {
		merged.NetworkConfig = override.NetworkConfig
	}

	// Template is intentionally left unset: resolution is complete.
	return merged
}

func deepMergeMap(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = deepCopyValue(v)
	}
	for k, ov := range override {
		if bv, ok := out[k]; ok {
			bMap, bIsMap := asStringMap(bv)
			oMap, oIsMap := asStringMap(ov)
			if bIsMap && oIsMap {
				out[k] = deepMergeMap(bMap, oMap)
				continue
			}
		}
		out[k] = deepCopyValue(ov)
	}
	return out
}

func asStringMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

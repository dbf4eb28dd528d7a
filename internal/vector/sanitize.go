package vector

// MetadataMaxStringLen bounds any single metadata string. Chunk text beyond
// this is retrievable from the relational store instead.
const MetadataMaxStringLen = 1000

// SanitizeMetadata keeps only the value shapes the index accepts: strings,
// numbers, bools, and flat arrays of strings or numbers. Nested maps, nils,
// and mixed arrays are dropped. Strings are truncated to MetadataMaxStringLen.
func SanitizeMetadata(meta map[string]interface{}) map[string]interface{} {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for key, value := range meta {
		if key == "" {
			continue
		}
		if v, ok := sanitizeValue(value); ok {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sanitizeValue(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case string:
		return truncate(v), true
	case bool:
		return v, true
	case int:
		return v, true
	case int32:
		return v, true
	case int64:
		return v, true
	case float32:
		return v, true
	case float64:
		return v, true
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, truncate(s))
		}
		return out, true
	case []interface{}:
		return sanitizeArray(v)
	default:
		return nil, false
	}
}

// sanitizeArray accepts homogeneous string or number arrays only.
func sanitizeArray(arr []interface{}) (interface{}, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	switch arr[0].(type) {
	case string:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, truncate(s))
		}
		return out, true
	case float64, float32, int, int32, int64:
		out := make([]float64, 0, len(arr))
		for _, item := range arr {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case float32:
				out = append(out, float64(n))
			case int:
				out = append(out, float64(n))
			case int32:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func truncate(s string) string {
	if len(s) <= MetadataMaxStringLen {
		return s
	}
	// cut on a rune boundary
	cut := MetadataMaxStringLen
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}

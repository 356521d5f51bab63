package memory

// DeepCopyValue clones open-schema tool payloads: nested
// map[string]interface{} and []interface{} are copied recursively,
// scalars pass through. Cache reads and writes go through this so
// downstream mutation cannot bleed back into stored state.
func DeepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = DeepCopyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = DeepCopyValue(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// DeepCopyMap clones a payload map. Nil maps stay nil.
func DeepCopyMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	return DeepCopyValue(src).(map[string]interface{})
}

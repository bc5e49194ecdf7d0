package simplicity

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonEntry 是参数/见证文件中单个槽位的形式：{"value": "...", "type": "..."}
type jsonEntry struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

func marshalEntries(m map[WitnessName]Value) ([]byte, error) {
	out := make(map[string]jsonEntry, len(m))
	for name, v := range m {
		out[string(name)] = jsonEntry{Value: v.String(), Type: v.Type().String()}
	}
	return json.Marshal(out)
}

func unmarshalEntries(data []byte) (map[WitnessName]Value, error) {
	var raw map[string]jsonEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[WitnessName]Value, len(raw))
	for name, e := range raw {
		n, err := NewWitnessName(name)
		if err != nil {
			return nil, err
		}
		t, err := ParseType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		v, err := ParseValue(e.Value, t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[n] = v
	}
	return out, nil
}

// MarshalJSON 输出 {"NAME": {"value": ..., "type": ...}}
func (a Arguments) MarshalJSON() ([]byte, error) { return marshalEntries(a) }

// UnmarshalJSON 解析参数文件
func (a *Arguments) UnmarshalJSON(data []byte) error {
	m, err := unmarshalEntries(data)
	if err != nil {
		return err
	}
	*a = m
	return nil
}

// MarshalJSON 输出 {"NAME": {"value": ..., "type": ...}}
func (w WitnessValues) MarshalJSON() ([]byte, error) { return marshalEntries(w) }

// UnmarshalJSON 解析见证文件
func (w *WitnessValues) UnmarshalJSON(data []byte) error {
	m, err := unmarshalEntries(data)
	if err != nil {
		return err
	}
	*w = m
	return nil
}

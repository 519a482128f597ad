package trending

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// droppedKeys are removed from the API response before it is stored
var droppedKeys = map[string]bool{"nfts": true}

type member struct {
	Key   string
	Value json.RawMessage
}

// Snapshot is the trending API response with its top-level key order kept
// and the NFT section removed
type Snapshot struct {
	members []member
}

// ParseSnapshot decodes a JSON object body
func ParseSnapshot(body []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode trending response: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("trending response is not a JSON object")
	}

	s := &Snapshot{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode trending response: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", key, err)
		}
		if droppedKeys[key] {
			continue
		}
		s.members = append(s.members, member{Key: key, Value: raw})
	}
	return s, nil
}

// Keys returns the top-level keys in response order
func (s *Snapshot) Keys() []string {
	keys := make([]string, len(s.members))
	for i, m := range s.members {
		keys[i] = m.Key
	}
	return keys
}

// Len returns the number of elements of a top-level array, 0 when the key is
// missing or not an array
func (s *Snapshot) Len(key string) int {
	for _, m := range s.members {
		if m.Key != key {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(m.Value, &items); err != nil {
			return 0
		}
		return len(items)
	}
	return 0
}

// Coins is the number of trending coins
func (s *Snapshot) Coins() int { return s.Len("coins") }

// Categories is the number of trending categories
func (s *Snapshot) Categories() int { return s.Len("categories") }

// MarshalJSON writes the members in their original order
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range s.members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(m.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

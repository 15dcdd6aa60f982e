package directory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"tideland.dev/go/slices"

	"chatdir/internal/app/user"
)

// encodeDocument serializes the directory as a JSON object keyed by user id.
// Keys appear in directory order so the document preserves insertion order across
// restarts; encoding/json would sort map keys.
func encodeDocument(order []string, users map[string]*user.Record) ([]byte, error) {
	if len(order) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")

	for i, id := range order {
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}

		value, err := json.MarshalIndent(users[id], "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode user %s: %w", id, err)
		}

		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(order)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// decodeDocument parses a document produced by encodeDocument, or by earlier
// deployments, keeping the order of its keys. The key is authoritative for the
// record id; a repeated key keeps its first position and its last value.
func decodeDocument(data []byte) ([]string, map[string]*user.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, err
	}

	order := []string{}
	users := make(map[string]*user.Record)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}

		var rec user.Record
		if err := dec.Decode(&rec); err != nil {
			return nil, nil, fmt.Errorf("decode user %s: %w", key, err)
		}

		if rec.Name == "" || rec.Password == "" {
			return nil, nil, fmt.Errorf("user %s has no name or password", key)
		}

		rec.ID = key
		rec.ChatRefs = dedupeRefs(rec.ChatRefs)

		if _, seen := users[key]; !seen {
			order = append(order, key)
		}
		users[key] = &rec
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, err
	}

	if _, err := dec.Token(); err == nil {
		return nil, nil, fmt.Errorf("unexpected data after directory document")
	}

	return order, users, nil
}

// dedupeRefs drops repeated chat references, keeping the first occurrence of each.
func dedupeRefs(refs []string) []string {
	out := slices.Unique(refs)
	if out == nil {
		return []string{}
	}
	return out
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// Package canonical produces the byte-exact document serialisation used
// both as the on-disk representation and as the signing input.
//
// The canonical form is UTF-8 JSON with keys in fixed lexical order,
// two-space indent and CRLF line endings. Canonicalisation is a fixed
// point: re-canonicalising any canonical document yields identical bytes.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// JSON canonicalises an arbitrary JSON value.
func JSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	// Numbers pass through verbatim; float64 round-trips would rewrite
	// them.
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse document body: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("serialise document body: %w", err)
	}
	return crlf(buf.Bytes()), nil
}

// Marshal canonicalises the JSON serialisation of v. Used for changeset
// payloads, whose struct field order is normalised into lexical key order
// by the round trip through a generic value.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(raw)
}

// crlf converts bare LF line endings to CRLF. encoding/json never emits
// CR, so the conversion is idempotent.
func crlf(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
}

// DocumentPath returns the tree-relative path of a document file:
// Land/Amtsgericht/Bezirk/<Bezirk>_<Blatt>.json. Paths are case-preserving
// and deterministic.
func DocumentPath(land, amtsgericht, bezirk string, blatt int) string {
	return path.Join(land, amtsgericht, bezirk, FileName(bezirk, blatt))
}

// FileName returns the document file name within its district directory.
func FileName(bezirk string, blatt int) string {
	return fmt.Sprintf("%s_%d.json", bezirk, blatt)
}

// ParseDocumentPath inverts DocumentPath. Non-document paths report an
// error.
func ParseDocumentPath(p string) (land, amtsgericht, bezirk string, blatt int, err error) {
	parts := strings.Split(path.Clean(p), "/")
	if len(parts) != 4 {
		return "", "", "", 0, fmt.Errorf("not a document path: %s", p)
	}
	land, amtsgericht, bezirk = parts[0], parts[1], parts[2]

	name := strings.TrimSuffix(parts[3], ".json")
	prefix := bezirk + "_"
	if name == parts[3] || !strings.HasPrefix(name, prefix) {
		return "", "", "", 0, fmt.Errorf("not a document path: %s", p)
	}
	blatt, err = strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil {
		return "", "", "", 0, fmt.Errorf("not a document path: %s", p)
	}
	return land, amtsgericht, bezirk, blatt, nil
}

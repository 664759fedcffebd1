package models

import (
	"encoding/json"
	"fmt"
)

// DocumentKey identifies a Blatt within a district.
type DocumentKey struct {
	Amtsgericht string `json:"amtsgericht" validate:"required"`
	Bezirk      string `json:"bezirk" validate:"required"`
	Blatt       int    `json:"blatt" validate:"required,min=1"`
}

// String renders the key in Amtsgericht/Bezirk/Blatt form.
func (k DocumentKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Amtsgericht, k.Bezirk, k.Blatt)
}

// Document is one land-title record. The body is an opaque canonicalisable
// blob; the registry never interprets it beyond re-serialising it into the
// canonical form.
type Document struct {
	DocumentKey
	Body json.RawMessage `json:"body" validate:"required"`
}

// DocumentChange pairs the previous and the new version of a document.
type DocumentChange struct {
	Alt Document `json:"alt"`
	Neu Document `json:"neu"`
}

// ChangesetPayload is the data sub-object of a changeset: the documents
// created and modified by it. Its canonical serialisation is the signing
// input.
type ChangesetPayload struct {
	New     []Document       `json:"new"`
	Changed []DocumentChange `json:"changed"`
}

// Keys returns every distinct document key touched by the payload, in
// first-seen order.
func (p *ChangesetPayload) Keys() []DocumentKey {
	seen := make(map[DocumentKey]bool)
	var keys []DocumentKey
	add := func(k DocumentKey) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, d := range p.New {
		add(d.DocumentKey)
	}
	for _, c := range p.Changed {
		add(c.Neu.DocumentKey)
	}
	return keys
}

// Documents returns the post-state documents of the payload (new documents
// and the new side of every change).
func (p *ChangesetPayload) Documents() []Document {
	docs := make([]Document, 0, len(p.New)+len(p.Changed))
	docs = append(docs, p.New...)
	for _, c := range p.Changed {
		docs = append(docs, c.Neu)
	}
	return docs
}

// Signature carries the hash algorithm tag declared by the signer and the
// detached OpenPGP signature bytes.
type Signature struct {
	Hash  string `json:"hash" validate:"required"`
	Bytes []byte `json:"bytes" validate:"required"`
}

// Changeset is a batch of document creations and modifications plus the
// detached signature that authorises it.
type Changeset struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=2000"`
	Fingerprint string           `json:"fingerprint" validate:"required,hexadecimal"`
	Signature   Signature        `json:"signature"`
	Payload     ChangesetPayload `json:"data"`
}

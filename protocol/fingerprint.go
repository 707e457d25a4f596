// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import (
	"encoding/hex"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Fingerprint identifies the wire contract of a compiled protocol: the
// descriptor, and every event's id, name, sites and field types. Peers
// with different fingerprints cannot decode each other's events.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Short returns the first 8 bytes in hex.
func (f Fingerprint) Short() string { return hex.EncodeToString(f[:8]) }

// fingerprintKey is the ASCII domain name zero-padded to 32 bytes.
var fingerprintKey = [32]byte{
	'e', 'v', 'e', 'n', 't', 'r', 'p', 'c', '.', 'p', 'r', 'o', 't', 'o', 'c', 'o',
	'l', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0,
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
}

type fingerprintDoc struct {
	_         struct{} `cbor:",toarray"`
	Namespace string
	Protocol  string
	Events    []fingerprintEvent
}

type fingerprintEvent struct {
	_      struct{} `cbor:",toarray"`
	ID     uint32
	Name   string
	Sites  []string
	Fields [][2]string
}

func fingerprintOf(c *Compiled) (Fingerprint, error) {
	doc := fingerprintDoc{
		Namespace: c.desc.Namespace,
		Protocol:  c.desc.Name,
		Events:    make([]fingerprintEvent, len(c.events)),
	}
	for i, e := range c.events {
		fe := fingerprintEvent{ID: e.ID, Name: e.Name, Sites: make([]string, len(e.Sites))}
		for j, s := range e.Sites {
			fe.Sites[j] = string(s)
		}
		slices.Sort(fe.Sites)
		for _, f := range e.Fields {
			fe.Fields = append(fe.Fields, [2]string{f.Name, f.Type.String()})
		}
		doc.Events[i] = fe
	}

	data, err := encMode.Marshal(doc)
	if err != nil {
		return Fingerprint{}, err
	}
	h, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		return Fingerprint{}, err
	}
	h.Write(data)
	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

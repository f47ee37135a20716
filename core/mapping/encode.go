package mapping

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	verrors "github.com/FocuswithJustin/versemap/core/errors"
	v11n "github.com/FocuswithJustin/versemap/core/versification"
)

// FormatVersion is the version of the encoded table layout.
const FormatVersion = 1

// jsonMarshal is a variable to allow testing of marshal errors.
var jsonMarshal = json.Marshal

// encodedTable is the serialized form of a Table. Field order and entry
// order are fixed, so equal tables encode to equal bytes.
type encodedTable struct {
	Version int            `json:"version"`
	From    v11n.Tradition `json:"from"`
	To      v11n.Tradition `json:"to"`
	Entries []Entry        `json:"entries"`
}

// MarshalBinary encodes the table deterministically.
func (t *Table) MarshalBinary() ([]byte, error) {
	enc := encodedTable{
		Version: FormatVersion,
		From:    t.pair.From,
		To:      t.pair.To,
		Entries: slices.Collect(t.Entries()),
	}
	if enc.Entries == nil {
		enc.Entries = []Entry{}
	}
	data, err := jsonMarshal(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode table %s: %w", t.pair, err)
	}
	return data, nil
}

// Decode parses an encoded table and validates it. A table that breaks
// the table invariants is refused with an *IntegrityError.
func Decode(data []byte) (*Table, error) {
	var enc encodedTable
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, verrors.NewParse("table", "", err.Error())
	}
	if enc.Version != FormatVersion {
		return nil, verrors.NewUnsupported("table format version", fmt.Sprintf("%d", enc.Version))
	}
	if !enc.From.IsValid() || !enc.To.IsValid() {
		return nil, verrors.NewValidation("pair", fmt.Sprintf("unknown traditions %q -> %q", enc.From, enc.To))
	}
	return FromEntries(Pair{From: enc.From, To: enc.To}, slices.Values(enc.Entries))
}

// Fingerprint returns the hex BLAKE3 digest of the encoded table.
func (t *Table) Fingerprint() (string, error) {
	data, err := t.MarshalBinary()
	if err != nil {
		return "", err
	}
	return Fingerprint(data), nil
}

// Fingerprint returns the hex BLAKE3 digest of encoded table bytes.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package fabric

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"golang.org/x/crypto/hkdf"
)

// Fabric errors.
var (
	ErrFabricNotFound   = errors.New("fabric not found")
	ErrFabricConflict   = errors.New("fabric already present")
	ErrTableFull        = errors.New("fabric table full")
	ErrInvalidRootKey   = errors.New("invalid root public key")
	ErrInvalidOperation = errors.New("invalid operational identifier")
)

// DefaultMaxFabrics is the number of fabrics a device supports.
const DefaultMaxFabrics = 5

// compressedFabricInfo is the HKDF info string for the compressed fabric id.
var compressedFabricInfo = []byte("CompressedFabric")

// Fabric is one fabric membership.
type Fabric struct {
	Index        uint8  `cbor:"0,keyasint"`
	CompressedID uint64 `cbor:"1,keyasint"`
	FabricID     uint64 `cbor:"2,keyasint"`
	NodeID       uint64 `cbor:"3,keyasint"`
	VendorID     uint16 `cbor:"4,keyasint"`
	Label        string `cbor:"5,keyasint,omitempty"`

	// NOC is the opaque node operational certificate chain.
	NOC []byte `cbor:"6,keyasint,omitempty"`

	// AdminSubject is the CASE subject granted administer privilege.
	AdminSubject uint64 `cbor:"7,keyasint,omitempty"`
}

// CompressedFabricID derives the 64-bit id advertised in operational
// discovery from the root public key and the fabric id.
func CompressedFabricID(rootPublicKey []byte, fabricID uint64) (uint64, error) {
	// Uncompressed P-256 point: 0x04 || X || Y.
	if len(rootPublicKey) != 65 || rootPublicKey[0] != 0x04 {
		return 0, ErrInvalidRootKey
	}
	var salt [8]byte
	binary.BigEndian.PutUint64(salt[:], fabricID)

	r := hkdf.New(sha256.New, rootPublicKey[1:], salt[:], compressedFabricInfo)
	var out [8]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(out[:]), nil
}

type tableBlob struct {
	NextIndex uint8    `cbor:"0,keyasint"`
	Fabrics   []Fabric `cbor:"1,keyasint"`
}

type aclBlob struct {
	Entries []byte `cbor:"0,keyasint"`
}

// Table is the persisted set of fabric memberships.
type Table struct {
	mu sync.RWMutex

	store     *nvs.Store
	max       int
	fabrics   []Fabric
	nextIndex uint8
	acl       []byte

	onChange func(count int)
}

// Open loads the table from store. maxFabrics <= 0 uses DefaultMaxFabrics.
func Open(store *nvs.Store, maxFabrics int) (*Table, error) {
	if maxFabrics <= 0 {
		maxFabrics = DefaultMaxFabrics
	}
	t := &Table{store: store, max: maxFabrics, nextIndex: 1}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the table from the store.
func (t *Table) Reload() error {
	blob, err := nvs.Load[tableBlob](t.store, nvs.KeyFabrics)
	if err != nil {
		return fmt.Errorf("load fabrics: %w", err)
	}
	acl, err := nvs.Load[aclBlob](t.store, nvs.KeyACLs)
	if err != nil {
		return fmt.Errorf("load acls: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.fabrics, t.nextIndex, t.acl = nil, 1, nil
	if blob != nil {
		t.fabrics = blob.Fabrics
		t.nextIndex = max(blob.NextIndex, 1)
	}
	if acl != nil {
		t.acl = acl.Entries
	}
	return nil
}

// OnChange sets a callback invoked with the fabric count after each change.
func (t *Table) OnChange(fn func(count int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Max returns the table capacity.
func (t *Table) Max() int {
	return t.max
}

// Count returns the number of fabrics.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.fabrics)
}

// List returns a copy of all fabrics ordered by index.
func (t *Table) List() []Fabric {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.fabrics)
}

// Get returns the fabric with the given index.
func (t *Table) Get(index uint8) (Fabric, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, f := range t.fabrics {
		if f.Index == index {
			return f, nil
		}
	}
	return Fabric{}, ErrFabricNotFound
}

// Add admits f and assigns its index. The table is committed before Add
// returns.
func (t *Table) Add(f Fabric) (uint8, error) {
	if f.NodeID == 0 || f.FabricID == 0 {
		return 0, ErrInvalidOperation
	}

	t.mu.Lock()
	if len(t.fabrics) >= t.max {
		t.mu.Unlock()
		return 0, ErrTableFull
	}
	for _, existing := range t.fabrics {
		if existing.CompressedID == f.CompressedID && existing.FabricID == f.FabricID {
			t.mu.Unlock()
			return 0, ErrFabricConflict
		}
	}

	f.Index = t.nextIndex
	next := append(slices.Clone(t.fabrics), f)
	if err := t.commitLocked(next, t.nextIndex+1); err != nil {
		t.mu.Unlock()
		return 0, err
	}
	count := len(t.fabrics)
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(count)
	}
	return f.Index, nil
}

// Remove drops the fabric with the given index.
func (t *Table) Remove(index uint8) error {
	t.mu.Lock()
	i := slices.IndexFunc(t.fabrics, func(f Fabric) bool { return f.Index == index })
	if i < 0 {
		t.mu.Unlock()
		return ErrFabricNotFound
	}

	next := slices.Delete(slices.Clone(t.fabrics), i, i+1)
	if err := t.commitLocked(next, t.nextIndex); err != nil {
		t.mu.Unlock()
		return err
	}
	count := len(t.fabrics)
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(count)
	}
	return nil
}

// SetLabel changes the label of the fabric with the given index.
func (t *Table) SetLabel(index uint8, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.fabrics, func(f Fabric) bool { return f.Index == index })
	if i < 0 {
		return ErrFabricNotFound
	}
	next := slices.Clone(t.fabrics)
	next[i].Label = label
	return t.commitLocked(next, t.nextIndex)
}

// Clear forgets every fabric and the ACL in memory. The stored blobs are
// removed by the caller's namespace erase.
func (t *Table) Clear() {
	t.mu.Lock()
	t.fabrics, t.nextIndex, t.acl = nil, 1, nil
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(0)
	}
}

// ACL returns the stored access control entries.
func (t *Table) ACL() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.acl)
}

// SetACL commits new access control entries.
func (t *Table) SetACL(entries []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := nvs.Save(t.store, nvs.KeyACLs, &aclBlob{Entries: entries}); err != nil {
		return fmt.Errorf("commit acls: %w", err)
	}
	t.acl = slices.Clone(entries)
	return nil
}

func (t *Table) commitLocked(fabrics []Fabric, nextIndex uint8) error {
	if nextIndex == 0 {
		nextIndex = 1
	}
	if err := nvs.Save(t.store, nvs.KeyFabrics, &tableBlob{NextIndex: nextIndex, Fabrics: fabrics}); err != nil {
		return fmt.Errorf("commit fabrics: %w", err)
	}
	t.fabrics = fabrics
	t.nextIndex = nextIndex
	return nil
}

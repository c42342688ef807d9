package fabric

import (
	"context"
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/wire"
)

// Cluster identifiers.
const (
	OperationalCredentialsID uint32 = 0x003E
	AccessControlID          uint32 = 0x001F
)

// Operational Credentials attributes.
const (
	AttrFabrics             uint32 = 0x0001
	AttrSupportedFabrics    uint32 = 0x0002
	AttrCommissionedFabrics uint32 = 0x0003
)

// Access Control attributes.
const (
	AttrACL uint32 = 0x0000
)

// Operational Credentials commands.
const (
	CmdAddNOC            uint32 = 0x06
	CmdUpdateFabricLabel uint32 = 0x09
	CmdRemoveFabric      uint32 = 0x0A
)

// NOCStatus is the status carried in a NOCResponse.
type NOCStatus uint8

const (
	NOCStatusOK                 NOCStatus = 0
	NOCStatusInvalidPublicKey   NOCStatus = 1
	NOCStatusInvalidNodeOpID    NOCStatus = 2
	NOCStatusInvalidNOC         NOCStatus = 3
	NOCStatusTableFull          NOCStatus = 5
	NOCStatusFabricConflict     NOCStatus = 9
	NOCStatusLabelConflict      NOCStatus = 10
	NOCStatusInvalidFabricIndex NOCStatus = 11
)

const (
	maxFabricLabelLen = 32
	maxNOCLen         = 1200
)

// AddNOCRequest carries a new operational identity. The engine has already
// validated the certificate chain and extracted its identifiers.
type AddNOCRequest struct {
	NOC              []byte `cbor:"0,keyasint"`
	ICAC             []byte `cbor:"1,keyasint,omitempty"`
	IPK              []byte `cbor:"2,keyasint"`
	CaseAdminSubject uint64 `cbor:"3,keyasint"`
	AdminVendorID    uint16 `cbor:"4,keyasint"`
	FabricID         uint64 `cbor:"5,keyasint"`
	NodeID           uint64 `cbor:"6,keyasint"`
	RootPublicKey    []byte `cbor:"7,keyasint"`
}

// RemoveFabricRequest removes one membership.
type RemoveFabricRequest struct {
	FabricIndex uint8 `cbor:"0,keyasint"`
}

// UpdateFabricLabelRequest renames one membership.
type UpdateFabricLabelRequest struct {
	Label       string `cbor:"0,keyasint"`
	FabricIndex uint8  `cbor:"1,keyasint"`
}

// NOCResponse answers every Operational Credentials command.
type NOCResponse struct {
	Status      NOCStatus `cbor:"0,keyasint"`
	FabricIndex uint8     `cbor:"1,keyasint,omitempty"`
	DebugText   string    `cbor:"2,keyasint,omitempty"`
}

// FabricDescriptor is the public view of a fabric.
type FabricDescriptor struct {
	RootPublicKey []byte `cbor:"1,keyasint,omitempty"`
	VendorID      uint16 `cbor:"2,keyasint"`
	FabricID      uint64 `cbor:"3,keyasint"`
	NodeID        uint64 `cbor:"4,keyasint"`
	Label         string `cbor:"5,keyasint"`
	FabricIndex   uint8  `cbor:"254,keyasint"`
}

// Credentials is the Operational Credentials cluster handler.
type Credentials struct {
	table *Table
}

var _ interaction.Handler = (*Credentials)(nil)

// NewCredentials creates the cluster handler over table.
func NewCredentials(table *Table) *Credentials {
	return &Credentials{table: table}
}

// Read implements interaction.Handler.
func (c *Credentials) Read(_ context.Context, path wire.Path) (any, error) {
	switch path.ID {
	case AttrFabrics:
		fabrics := c.table.List()
		out := make([]FabricDescriptor, 0, len(fabrics))
		for _, f := range fabrics {
			out = append(out, FabricDescriptor{
				VendorID:    f.VendorID,
				FabricID:    f.FabricID,
				NodeID:      f.NodeID,
				Label:       f.Label,
				FabricIndex: f.Index,
			})
		}
		return out, nil
	case AttrSupportedFabrics:
		return uint8(c.table.Max()), nil
	case AttrCommissionedFabrics:
		return uint8(c.table.Count()), nil
	}
	return nil, interaction.NewStatus(wire.StatusUnsupportedAttribute)
}

// Write implements interaction.Handler. All attributes are read-only.
func (c *Credentials) Write(context.Context, wire.Path, cbor.RawMessage) error {
	return interaction.NewStatus(wire.StatusUnsupportedWrite)
}

// Invoke implements interaction.Handler.
func (c *Credentials) Invoke(_ context.Context, path wire.Path, args cbor.RawMessage) (any, error) {
	switch path.ID {
	case CmdAddNOC:
		var req AddNOCRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "AddNOC: %v", err)
		}
		return c.addNOC(&req)

	case CmdRemoveFabric:
		var req RemoveFabricRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "RemoveFabric: %v", err)
		}
		if err := c.table.Remove(req.FabricIndex); err != nil {
			if errors.Is(err, ErrFabricNotFound) {
				return &NOCResponse{Status: NOCStatusInvalidFabricIndex}, nil
			}
			return nil, err
		}
		return &NOCResponse{Status: NOCStatusOK, FabricIndex: req.FabricIndex}, nil

	case CmdUpdateFabricLabel:
		var req UpdateFabricLabelRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "UpdateFabricLabel: %v", err)
		}
		return c.updateLabel(&req)
	}
	return nil, interaction.NewStatus(wire.StatusUnsupportedCommand)
}

func (c *Credentials) addNOC(req *AddNOCRequest) (any, error) {
	if len(req.NOC) == 0 || len(req.NOC) > maxNOCLen {
		return &NOCResponse{Status: NOCStatusInvalidNOC}, nil
	}
	compressed, err := CompressedFabricID(req.RootPublicKey, req.FabricID)
	if err != nil {
		return &NOCResponse{Status: NOCStatusInvalidPublicKey}, nil
	}

	index, err := c.table.Add(Fabric{
		CompressedID: compressed,
		FabricID:     req.FabricID,
		NodeID:       req.NodeID,
		VendorID:     req.AdminVendorID,
		NOC:          append(append([]byte(nil), req.NOC...), req.ICAC...),
		AdminSubject: req.CaseAdminSubject,
	})
	switch {
	case err == nil:
		return &NOCResponse{Status: NOCStatusOK, FabricIndex: index}, nil
	case errors.Is(err, ErrInvalidOperation):
		return &NOCResponse{Status: NOCStatusInvalidNodeOpID}, nil
	case errors.Is(err, ErrTableFull):
		return &NOCResponse{Status: NOCStatusTableFull}, nil
	case errors.Is(err, ErrFabricConflict):
		return &NOCResponse{Status: NOCStatusFabricConflict}, nil
	default:
		// Persistence failure: the fabric was not admitted.
		return nil, err
	}
}

func (c *Credentials) updateLabel(req *UpdateFabricLabelRequest) (any, error) {
	if len(req.Label) > maxFabricLabelLen {
		return nil, interaction.NewStatus(wire.StatusConstraintError)
	}
	fabrics := c.table.List()
	for _, f := range fabrics {
		if f.Index != req.FabricIndex && f.Label != "" && f.Label == req.Label {
			return &NOCResponse{Status: NOCStatusLabelConflict}, nil
		}
	}
	if err := c.table.SetLabel(req.FabricIndex, req.Label); err != nil {
		if errors.Is(err, ErrFabricNotFound) {
			return &NOCResponse{Status: NOCStatusInvalidFabricIndex}, nil
		}
		return nil, err
	}
	return &NOCResponse{Status: NOCStatusOK, FabricIndex: req.FabricIndex}, nil
}

// AccessControl is the Access Control cluster handler. Entries are opaque
// to the device and stored verbatim.
type AccessControl struct {
	table *Table
}

var _ interaction.Handler = (*AccessControl)(nil)

// NewAccessControl creates the cluster handler over table.
func NewAccessControl(table *Table) *AccessControl {
	return &AccessControl{table: table}
}

// Read implements interaction.Handler.
func (a *AccessControl) Read(_ context.Context, path wire.Path) (any, error) {
	if path.ID != AttrACL {
		return nil, interaction.NewStatus(wire.StatusUnsupportedAttribute)
	}
	acl := a.table.ACL()
	if len(acl) == 0 {
		return []any{}, nil
	}
	return cbor.RawMessage(acl), nil
}

// Write implements interaction.Handler.
func (a *AccessControl) Write(_ context.Context, path wire.Path, value cbor.RawMessage) error {
	if path.ID != AttrACL {
		return interaction.NewStatus(wire.StatusUnsupportedWrite)
	}
	if err := cbor.Wellformed(value); err != nil {
		return interaction.Errorf(wire.StatusConstraintError, "acl: %v", err)
	}
	return a.table.SetACL(value)
}

// Invoke implements interaction.Handler.
func (a *AccessControl) Invoke(context.Context, wire.Path, cbor.RawMessage) (any, error) {
	return nil, interaction.NewStatus(wire.StatusUnsupportedCommand)
}

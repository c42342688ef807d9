package stack

import (
	"context"

	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/fabric"
)

func (s *Stack) commissionableRecord(r *resources, cd CommissioningData, port uint16) (*discovery.Record, error) {
	d := s.config.Device
	return discovery.CommissionableRecord(&discovery.CommissionableInfo{
		Instance:      r.instance,
		Discriminator: cd.Discriminator,
		Mode:          discovery.CommissioningBasic,
		VendorID:      d.VendorID,
		ProductID:     d.ProductID,
		DeviceType:    d.DeviceType,
		DeviceName:    d.DeviceName,
		PairingHint:   d.PairingHint,
		Port:          port,
	})
}

func (s *Stack) publishCommissionable(ctx context.Context, r *resources, cd CommissioningData, port uint16) error {
	rec, err := s.commissionableRecord(r, cd, port)
	if err != nil {
		return err
	}
	return r.discovery.Publish(ctx, rec)
}

// operationalRecords returns one record per fabric membership.
func operationalRecords(fabrics []fabric.Fabric, port uint16) []*discovery.Record {
	recs := make([]*discovery.Record, 0, len(fabrics))
	for _, f := range fabrics {
		recs = append(recs, discovery.OperationalRecord(&discovery.OperationalInfo{
			CompressedFabricID: f.CompressedID,
			NodeID:             f.NodeID,
			Port:               port,
		}))
	}
	return recs
}

// publishOperational brings the operational records in line with the
// fabric table. Records are only announced while Operating.
func (s *Stack) publishOperational(ctx context.Context, r *resources, port uint16) {
	if s.Mode() != Operating {
		return
	}
	recs := operationalRecords(r.fabrics.List(), port)
	if err := r.discovery.Sync(ctx, discovery.ServiceTypeOperational, recs); err != nil {
		s.warnLog("stack: operational records not published", "error", err)
	}
}

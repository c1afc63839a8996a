package runtime

import (
	"context"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

const (
	InstancePath = "/instance/"
	RecordPath   = "/record/"
)

func recordSavePath(instanceID string) string {
	return RecordPath + instanceID
}

// saveRecord stores the trace of one node dispatch. Failures are only logged.
func (o *orchestrator) saveRecord(ctx context.Context, record *types.NodeTraceRecord) {
	b, err := utils.Serialize(record)
	if err != nil {
		log.Errorf("%s failed to serialize record of %s: %v", record.InstanceID, record.NodeID, err)
		return
	}
	if err := o.store.Set(ctx, recordSavePath(record.InstanceID), record.NodeID, b); err != nil {
		log.Errorf("%s failed to save record: %v", record.InstanceID, errors.ErrorStack(err))
	}
}

// archiveInstance stores a terminal snapshot. Failures are only logged and
// never change the outcome of the instance.
func (o *orchestrator) archiveInstance(ctx context.Context, snapshot *types.InstanceSnapshot) {
	b, err := utils.Serialize(snapshot)
	if err != nil {
		log.Errorf("%s failed to serialize snapshot: %v", snapshot.ID, err)
		return
	}
	if err := o.store.Set(ctx, InstancePath, snapshot.ID, b); err != nil {
		log.Errorf("%s failed to archive instance: %v", snapshot.ID, errors.ErrorStack(err))
	}
}

// loadInstance returns nil without error when instanceID was never archived.
func (o *orchestrator) loadInstance(ctx context.Context, instanceID string) (*types.InstanceSnapshot, error) {
	b, err := o.store.Get(ctx, InstancePath, instanceID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, nil
	}

	snapshot := &types.InstanceSnapshot{}
	if err := utils.Unserialize(b, snapshot); err != nil {
		return nil, errors.Annotatef(err, "unserialize instance %s", instanceID)
	}
	return snapshot, nil
}

func (o *orchestrator) loadRecords(ctx context.Context, instanceID string) (map[string]*types.NodeTraceRecord, error) {
	records := make(map[string]*types.NodeTraceRecord)
	recordPath := recordSavePath(instanceID)
	err := o.store.List(ctx, recordPath, func(node string) bool {
		b, err := o.store.Get(ctx, recordPath, node)
		if err != nil {
			log.Errorf("load %s %s from store failed: %v", recordPath, node, err)
			return true
		}
		record := &types.NodeTraceRecord{}
		if err := utils.Unserialize(b, record); err != nil {
			log.Errorf("unserialize %s %s from store:%s failed: %v", recordPath, node, string(b), err)
			return true
		}
		records[node] = record
		return true
	})
	return records, errors.Trace(err)
}

package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pglogrepl"
	"go.uber.org/zap"
)

// cdcRow is the column projection of sync_outbox_event the CDC dispatcher
// cares about. Adapted from apps/cdc-worker/internal/replication/decoder.go,
// generalized from the teacher's fixed "outbox" table shape to this
// system's sync_outbox_event columns (subject/payload/headers instead of
// aggregate_type/aggregate_id/actor_id/type).
type cdcRow struct {
	ID      string
	Subject string
	Payload json.RawMessage
	Headers json.RawMessage
}

// relationDecoder maintains a registry of RelationMessages keyed by relation
// ID so InsertMessages can be decoded into structured rows without a second
// round-trip to Postgres for the schema.
type relationDecoder struct {
	relations map[uint32]*pglogrepl.RelationMessageV2
	logger    *zap.Logger
}

func newRelationDecoder(logger *zap.Logger) *relationDecoder {
	return &relationDecoder{relations: make(map[uint32]*pglogrepl.RelationMessageV2), logger: logger}
}

func (d *relationDecoder) registerRelation(msg *pglogrepl.RelationMessageV2) {
	d.relations[msg.RelationID] = msg
	d.logger.Debug("registered relation",
		zap.String("table", msg.RelationName),
		zap.Uint32("relation_id", msg.RelationID),
	)
}

// decodeInsert converts an InsertMessage on sync_outbox_event into a cdcRow
// by matching tuple columns against the stored RelationMessage.
func (d *relationDecoder) decodeInsert(msg *pglogrepl.InsertMessageV2) (cdcRow, error) {
	rel, ok := d.relations[msg.RelationID]
	if !ok {
		return cdcRow{}, fmt.Errorf("unknown relation id %d (no prior RelationMessage)", msg.RelationID)
	}

	values := make(map[string]string, len(msg.Tuple.Columns))
	for i, col := range msg.Tuple.Columns {
		if i >= len(rel.Columns) {
			break
		}
		name := rel.Columns[i].Name
		switch col.DataType {
		case 'n': // null
			values[name] = ""
		default: // 't' text, or binary — both arrive as the raw column bytes
			values[name] = string(col.Data)
		}
	}

	row := cdcRow{
		ID:      values["id"],
		Subject: values["subject"],
		Payload: json.RawMessage(values["payload"]),
	}
	if h := values["headers"]; h != "" {
		row.Headers = json.RawMessage(h)
	}
	return row, nil
}

package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/arc-self/sync-relay/internal/publish"
)

// CDCConfig configures the logical-replication alternate Outbox Dispatcher
// strategy (SPEC_FULL.md DOMAIN STACK). Deployments that insert
// sync_outbox_event rows via direct SQL outside this process (rather than
// calling InsertPending through this binary) use this instead of the
// polling Dispatcher.
type CDCConfig struct {
	ReplicationURL  string
	SlotName        string
	PublicationName string
	StandbyTimeout  time.Duration
}

// CDCDispatcher tails a Postgres logical replication slot for INSERTs on
// sync_outbox_event and republishes them directly, without polling.
// Adapted from apps/cdc-worker/cmd/worker/main.go.
type CDCDispatcher struct {
	cfg        CDCConfig
	publisher  publish.Publisher
	log        *zap.Logger
	dispatched metric.Int64Counter
}

// NewCDCDispatcher constructs a CDCDispatcher. dispatched is the
// telemetry.RelayMetrics OutboxDispatched counter and may be nil.
func NewCDCDispatcher(cfg CDCConfig, publisher publish.Publisher, log *zap.Logger, dispatched metric.Int64Counter) *CDCDispatcher {
	if cfg.StandbyTimeout <= 0 {
		cfg.StandbyTimeout = 10 * time.Second
	}
	if cfg.SlotName == "" {
		cfg.SlotName = "sync_relay_outbox_slot"
	}
	if cfg.PublicationName == "" {
		cfg.PublicationName = "sync_relay_outbox_pub"
	}
	return &CDCDispatcher{cfg: cfg, publisher: publisher, log: log, dispatched: dispatched}
}

// Run connects to Postgres, creates the replication slot if needed (an
// idempotent no-op once created), resumes from the slot's confirmed flush
// LSN on restart, and republishes every decoded insert until ctx is
// cancelled.
func (c *CDCDispatcher) Run(ctx context.Context) error {
	conn, err := pgconn.Connect(ctx, c.cfg.ReplicationURL)
	if err != nil {
		return fmt.Errorf("cdc dispatcher: connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := pglogrepl.CreateReplicationSlot(ctx, conn, c.cfg.SlotName, "pgoutput",
		pglogrepl.CreateReplicationSlotOptions{Temporary: false}); err != nil {
		c.log.Warn("replication slot creation (likely already exists)", zap.Error(err))
	} else {
		c.log.Info("replication slot created", zap.String("slot", c.cfg.SlotName))
	}

	if _, err := pglogrepl.IdentifySystem(ctx, conn); err != nil {
		return fmt.Errorf("cdc dispatcher: identify system: %w", err)
	}

	// Resuming from the slot's own confirmed_flush_lsn (rather than the
	// current WAL tip) is required on restart: starting from XLogPos would
	// silently skip every row written between the last confirmed flush and
	// now. The server streams from the greater of the requested LSN and the
	// slot's confirmed_flush_lsn, so requesting LSN 0 resumes from the
	// confirmed position (the creation point for a brand new slot).
	startLSN := pglogrepl.LSN(0)

	pluginArgs := []string{
		"proto_version '2'",
		fmt.Sprintf("publication_names '%s'", c.cfg.PublicationName),
	}
	if err := pglogrepl.StartReplication(ctx, conn, c.cfg.SlotName, startLSN,
		pglogrepl.StartReplicationOptions{PluginArgs: pluginArgs}); err != nil {
		return fmt.Errorf("cdc dispatcher: start replication: %w", err)
	}
	c.log.Info("logical replication started",
		zap.String("slot", c.cfg.SlotName), zap.String("publication", c.cfg.PublicationName))

	return c.loop(ctx, conn, startLSN)
}

func (c *CDCDispatcher) loop(ctx context.Context, conn *pgconn.PgConn, startLSN pglogrepl.LSN) error {
	decoder := newRelationDecoder(c.log)
	clientXLogPos := startLSN
	nextStandbyDeadline := time.Now().Add(c.cfg.StandbyTimeout)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Now().After(nextStandbyDeadline) {
			if err := pglogrepl.SendStandbyStatusUpdate(ctx, conn,
				pglogrepl.StandbyStatusUpdate{WALWritePosition: clientXLogPos}); err != nil {
				c.log.Error("standby status update failed", zap.Error(err))
			}
			nextStandbyDeadline = time.Now().Add(c.cfg.StandbyTimeout)
		}

		rawMsg, err := conn.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("receive message failed", zap.Error(err))
			continue
		}

		if errResp, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("cdc dispatcher: postgres WAL error: %s", errResp.Message)
		}

		copyData, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			continue
		}

		switch copyData.Data[0] {
		case pglogrepl.XLogDataByteID:
			next, err := c.handleXLogData(ctx, decoder, copyData.Data[1:])
			if err != nil {
				c.log.Error("handle xlog data failed", zap.Error(err))
				continue
			}
			clientXLogPos = next

		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(copyData.Data[1:])
			if err != nil {
				c.log.Error("parse keepalive failed", zap.Error(err))
				continue
			}
			if pkm.ReplyRequested {
				nextStandbyDeadline = time.Time{}
			}
		}
	}
}

func (c *CDCDispatcher) handleXLogData(ctx context.Context, decoder *relationDecoder, data []byte) (pglogrepl.LSN, error) {
	xld, err := pglogrepl.ParseXLogData(data)
	if err != nil {
		return 0, fmt.Errorf("parse xlog data: %w", err)
	}

	logicalMsg, err := pglogrepl.ParseV2(xld.WALData, false)
	if err != nil {
		return 0, fmt.Errorf("parse logical message: %w", err)
	}

	switch msg := logicalMsg.(type) {
	case *pglogrepl.RelationMessageV2:
		decoder.registerRelation(msg)

	case *pglogrepl.InsertMessageV2:
		row, err := decoder.decodeInsert(msg)
		if err != nil {
			return 0, fmt.Errorf("decode insert: %w", err)
		}
		if row.Subject == "" {
			c.log.Warn("decoded outbox row has empty subject, skipping", zap.String("id", row.ID))
			break
		}
		if _, err := c.publisher.Publish(row.Subject, row.Payload, row.ID); err != nil {
			c.log.Error("cdc publish failed", zap.String("id", row.ID), zap.String("subject", row.Subject), zap.Error(err))
		} else {
			c.log.Debug("cdc event published", zap.String("id", row.ID), zap.String("subject", row.Subject))
			if c.dispatched != nil {
				c.dispatched.Add(ctx, 1)
			}
		}
	}

	return xld.WALStart + pglogrepl.LSN(len(xld.WALData)), nil
}

package changefeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	// DefaultPublication is the name of the publication the logical source
	// replicates.
	DefaultPublication = "counters_changes"

	// standbyTimeout is the interval between status updates sent to the
	// server to confirm receipt of WAL.
	standbyTimeout = 10 * time.Second

	outputPlugin = "pgoutput"
)

var _ Source = (*LogicalSource)(nil)

type (
	// LogicalSource is a Source backed by postgres logical replication using
	// the pgoutput plugin. Each attachment creates a temporary replication
	// slot, so no WAL is retained for the source once it detaches.
	LogicalSource struct {
		logr.Logger

		connString  string
		publication string
		table       string
		timeout     time.Duration
	}

	LogicalSourceOptions struct {
		logr.Logger

		ConnString       string
		Publication      string
		Table            string
		SubscribeTimeout time.Duration
	}

	// decoder decodes pgoutput messages into raw changes.
	decoder struct {
		relations map[uint32]*pglogrepl.RelationMessage
		typeMap   *pgtype.Map
	}
)

func NewLogicalSource(opts LogicalSourceOptions) *LogicalSource {
	s := &LogicalSource{
		Logger:      opts.Logger.WithValues("component", "logical_source"),
		connString:  opts.ConnString,
		publication: opts.Publication,
		table:       opts.Table,
		timeout:     opts.SubscribeTimeout,
	}
	if s.publication == "" {
		s.publication = DefaultPublication
	}
	if s.timeout == 0 {
		s.timeout = DefaultSubscribeTimeout
	}
	return s
}

// Start streams changes from a replication slot, relaying them to the
// handler. Upon losing its connection it reconnects with exponential backoff,
// starting afresh from the server's current WAL position.
func (s *LogicalSource) Start(ctx context.Context, h Handler) error {
	bo := backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0))
	op := func() error {
		conn, err := s.subscribe(ctx, h)
		if err != nil {
			return err
		}
		defer conn.Close(context.Background())

		bo.Reset()

		if err := s.stream(ctx, conn, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.HandleStatus(StatusError, err)
			return err
		}
		return nil
	}
	policy := backoff.WithContext(bo, ctx)
	err := backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		s.Error(err, "reconnecting to replication stream", "backoff", next)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// subscribe connects in replication mode, ensures the publication exists, and
// starts replication from a new temporary slot.
func (s *LogicalSource) subscribe(ctx context.Context, h Handler) (*pgconn.PgConn, error) {
	subCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fail := func(err error) error {
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(subCtx.Err(), context.DeadlineExceeded):
			h.HandleStatus(StatusTimedOut, err)
		default:
			h.HandleStatus(StatusError, err)
		}
		return err
	}

	connString, err := replicationConnString(s.connString)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	conn, err := pgconn.Connect(subCtx, connString)
	if err != nil {
		return nil, fail(fmt.Errorf("connecting in replication mode: %w", err))
	}
	if err := s.start(subCtx, conn); err != nil {
		conn.Close(context.Background())
		return nil, fail(err)
	}
	h.HandleStatus(StatusSubscribed, nil)
	return conn, nil
}

func (s *LogicalSource) start(ctx context.Context, conn *pgconn.PgConn) error {
	if _, err := conn.Exec(ctx, createPublicationSQL(s.publication, s.table)).ReadAll(); err != nil {
		return fmt.Errorf("creating publication: %w", err)
	}
	sysident, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		return fmt.Errorf("identifying system: %w", err)
	}
	slot := "counters_" + strings.ToLower(internal.GenerateRandomString(8))
	_, err = pglogrepl.CreateReplicationSlot(ctx, conn, slot, outputPlugin, pglogrepl.CreateReplicationSlotOptions{
		Temporary: true,
	})
	if err != nil {
		return fmt.Errorf("creating replication slot: %w", err)
	}
	err = pglogrepl.StartReplication(ctx, conn, slot, sysident.XLogPos, pglogrepl.StartReplicationOptions{
		PluginArgs: []string{
			"proto_version '1'",
			"publication_names " + quoteLiteral(s.publication),
		},
	})
	if err != nil {
		return fmt.Errorf("starting replication: %w", err)
	}
	s.V(1).Info("started replication", "slot", slot, "xlogpos", sysident.XLogPos)
	return nil
}

// stream receives replication messages until an error occurs or ctx is
// canceled.
func (s *LogicalSource) stream(ctx context.Context, conn *pgconn.PgConn, h Handler) error {
	var (
		dec          = newDecoder()
		clientXLog   pglogrepl.LSN
		nextDeadline = time.Now().Add(standbyTimeout)
	)
	for {
		if time.Now().After(nextDeadline) {
			err := pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: clientXLog,
			})
			if err != nil {
				return fmt.Errorf("sending standby status update: %w", err)
			}
			nextDeadline = time.Now().Add(standbyTimeout)
		}

		recvCtx, cancel := context.WithDeadline(ctx, nextDeadline)
		rawMsg, err := conn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if pgconn.Timeout(err) && ctx.Err() == nil {
				continue
			}
			return fmt.Errorf("receiving replication message: %w", err)
		}

		switch msg := rawMsg.(type) {
		case *pgproto3.ErrorResponse:
			return fmt.Errorf("replication error: %s", msg.Message)
		case *pgproto3.CopyData:
			if len(msg.Data) == 0 {
				continue
			}
			switch msg.Data[0] {
			case pglogrepl.PrimaryKeepaliveMessageByteID:
				pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
				if err != nil {
					return fmt.Errorf("parsing keepalive: %w", err)
				}
				if pkm.ServerWALEnd > clientXLog {
					clientXLog = pkm.ServerWALEnd
				}
				if pkm.ReplyRequested {
					nextDeadline = time.Time{}
				}
			case pglogrepl.XLogDataByteID:
				xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
				if err != nil {
					return fmt.Errorf("parsing xlog data: %w", err)
				}
				logicalMsg, err := pglogrepl.Parse(xld.WALData)
				if err != nil {
					return fmt.Errorf("parsing logical replication message: %w", err)
				}
				change, ok, err := dec.apply(logicalMsg)
				if err != nil {
					s.Error(err, "decoding replication message")
				} else if ok {
					h.HandleChange(ctx, change)
				}
				if end := xld.WALStart + pglogrepl.LSN(len(xld.WALData)); end > clientXLog {
					clientXLog = end
				}
			}
		}
	}
}

func newDecoder() *decoder {
	return &decoder{
		relations: make(map[uint32]*pglogrepl.RelationMessage),
		typeMap:   pgtype.NewMap(),
	}
}

// apply applies a pgoutput message, returning a change if the message
// describes a row change.
func (d *decoder) apply(msg pglogrepl.Message) (RawChange, bool, error) {
	switch msg := msg.(type) {
	case *pglogrepl.RelationMessage:
		d.relations[msg.RelationID] = msg
	case *pglogrepl.InsertMessage:
		rel, ok := d.relations[msg.RelationID]
		if !ok {
			return RawChange{}, false, fmt.Errorf("unknown relation ID %d", msg.RelationID)
		}
		row, err := d.tuple(rel, msg.Tuple)
		if err != nil {
			return RawChange{}, false, err
		}
		return RawChange{Table: rel.RelationName, Action: InsertAction, New: row}, true, nil
	case *pglogrepl.UpdateMessage:
		rel, ok := d.relations[msg.RelationID]
		if !ok {
			return RawChange{}, false, fmt.Errorf("unknown relation ID %d", msg.RelationID)
		}
		row, err := d.tuple(rel, msg.NewTuple)
		if err != nil {
			return RawChange{}, false, err
		}
		return RawChange{Table: rel.RelationName, Action: UpdateAction, New: row}, true, nil
	case *pglogrepl.DeleteMessage:
		rel, ok := d.relations[msg.RelationID]
		if !ok {
			return RawChange{}, false, fmt.Errorf("unknown relation ID %d", msg.RelationID)
		}
		row, err := d.tuple(rel, msg.OldTuple)
		if err != nil {
			return RawChange{}, false, err
		}
		return RawChange{Table: rel.RelationName, Action: DeleteAction, Old: row}, true, nil
	}
	return RawChange{}, false, nil
}

func (d *decoder) tuple(rel *pglogrepl.RelationMessage, tuple *pglogrepl.TupleData) (map[string]any, error) {
	row := make(map[string]any)
	if tuple == nil {
		return row, nil
	}
	for i, col := range tuple.Columns {
		if i >= len(rel.Columns) {
			break
		}
		name := rel.Columns[i].Name
		switch col.DataType {
		case 'n': // null
			row[name] = nil
		case 'u': // unchanged toasted value; not sent
		case 't': // text formatted value
			v, err := d.decodeText(col.Data, rel.Columns[i].DataType)
			if err != nil {
				return nil, fmt.Errorf("decoding column %s: %w", name, err)
			}
			row[name] = v
		}
	}
	return row, nil
}

func (d *decoder) decodeText(data []byte, oid uint32) (any, error) {
	if dt, ok := d.typeMap.TypeForOID(oid); ok {
		return dt.Codec.DecodeValue(d.typeMap, oid, pgtype.TextFormatCode, data)
	}
	return string(data), nil
}

func createPublicationSQL(publication, table string) string {
	return fmt.Sprintf(`
DO $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_publication WHERE pubname = %s) THEN
        CREATE PUBLICATION %s FOR TABLE %s;
    END IF;
END
$$;`, quoteLiteral(publication), pgx.Identifier{publication}.Sanitize(), pgx.Identifier{table}.Sanitize())
}

// quoteLiteral quotes s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// replicationConnString adds the replication parameter to a connection
// string, which may be either a URL or a DSN.
func replicationConnString(connString string) (string, error) {
	if strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://") {
		u, err := url.Parse(connString)
		if err != nil {
			return "", fmt.Errorf("parsing connection string url: %w", err)
		}
		q := u.Query()
		q.Set("replication", "database")
		u.RawQuery = q.Encode()
		return u.String(), nil
	} else if connString == "" {
		return "replication=database", nil
	}
	return connString + " replication=database", nil
}

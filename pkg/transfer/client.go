package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/monitor"
	"p2p-nebula/nebula/pkg/protocol"
	"p2p-nebula/nebula/pkg/storage"
	"p2p-nebula/nebula/pkg/transport/tcp"
)

var (
	// ErrNotFound means no queried peer could deliver the file.
	ErrNotFound = errors.New("file not found on any peer")
	// ErrNoStart means the holder closed the connection without a START line.
	ErrNoStart = errors.New("peer closed connection without START")
)

// Result describes a successful search.
type Result struct {
	Peer   protocol.PeerAddress
	Record storage.FileRecord
}

// Client searches peers for a file and downloads it into the local store.
type Client struct {
	store       *storage.Store
	metrics     *monitor.Metrics
	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// NewClient creates a client. Zero timeouts keep the OS defaults.
func NewClient(store *storage.Store, metrics *monitor.Metrics, dialTimeout, ioTimeout time.Duration) *Client {
	return &Client{store: store, metrics: metrics, dialTimeout: dialTimeout, ioTimeout: ioTimeout}
}

// exchange dials peer and writes req. The returned stop func detaches the
// ctx watcher that closes the connection when ctx is done.
func (c *Client) exchange(ctx context.Context, peer protocol.PeerAddress, req protocol.Request) (net.Conn, func() bool, error) {
	conn, err := tcp.Dial(ctx, peer.String(), c.dialTimeout)
	if err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	conn = tcp.WithIdleTimeout(conn, c.ioTimeout)
	if err := tcp.SendStream(conn, req.Encode()); err != nil {
		stop()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, stop, nil
}

// Query asks peer whether it holds fileID.
func (c *Client) Query(ctx context.Context, peer protocol.PeerAddress, fileID string) (bool, error) {
	conn, stop, err := c.exchange(ctx, peer, protocol.Search(fileID))
	if err != nil {
		return false, err
	}
	defer stop()
	defer conn.Close()

	line, err := tcp.ReadStream(conn)
	if err != nil {
		return false, fmt.Errorf("read search reply: %w", err)
	}
	resp, err := protocol.ParseResponse(line)
	if err != nil {
		return false, err
	}
	return resp.Kind == protocol.RespFound, nil
}

// Fetch downloads fileID from peer into the store. The file is stored under
// the name announced in START, falling back to fileName and then the id.
func (c *Client) Fetch(ctx context.Context, peer protocol.PeerAddress, fileID, fileName string, progress *Progress) (storage.FileRecord, error) {
	conn, stop, err := c.exchange(ctx, peer, protocol.Fetch(fileID, fileName))
	if err != nil {
		return storage.FileRecord{}, err
	}
	defer stop()
	defer conn.Close()

	r := tcp.NewLineReader(conn)
	line, err := tcp.ReadLine(r)
	if errors.Is(err, io.EOF) {
		return storage.FileRecord{}, ErrNoStart
	}
	if err != nil {
		return storage.FileRecord{}, fmt.Errorf("read start line: %w", err)
	}
	resp, err := protocol.ParseResponse(line)
	if err != nil {
		return storage.FileRecord{}, err
	}
	if resp.Kind != protocol.RespStart {
		return storage.FileRecord{}, fmt.Errorf("%w: got %s", ErrNoStart, resp.Kind)
	}

	name := resp.Arg
	if name == "" {
		name = fileName
	}
	if name == "" {
		name = fileID
	}

	if progress == nil {
		progress = &Progress{}
	}
	progress.begin(peer.String())
	defer progress.finish()

	start := time.Now()
	rec, err := c.store.SaveIncoming(fileID, name, &countingReader{r: r, p: progress})
	if err != nil {
		return storage.FileRecord{}, err
	}
	c.metrics.RecordTransfer(monitor.Fetched, rec.Size, time.Since(start))
	return rec, nil
}

// Search walks peers in order and downloads fileID from the first one that
// has it. Failing peers are logged and skipped; ErrNotFound is returned when
// every peer has been tried.
func (c *Client) Search(ctx context.Context, peers []protocol.PeerAddress, fileID, fileName string, progress *Progress) (Result, error) {
	for _, peer := range peers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		found, err := c.Query(ctx, peer, fileID)
		if err != nil {
			logger.Sugar.Warnf("[TransferClient] search failed, skipping peer: peer=%s err=%v", peer, err)
			continue
		}
		if !found {
			logger.Sugar.Debugf("[TransferClient] peer does not have file: peer=%s id=%s", peer, fileID)
			continue
		}

		logger.Sugar.Infof("[TransferClient] file found: peer=%s id=%s", peer, fileID)
		rec, err := c.Fetch(ctx, peer, fileID, fileName, progress)
		if err != nil {
			logger.Sugar.Warnf("[TransferClient] download failed, trying next peer: peer=%s err=%v", peer, err)
			continue
		}

		c.metrics.Searches.WithLabelValues("found").Inc()
		logger.Sugar.Infof("[TransferClient] downloaded file: peer=%s name=%s id=%s bytes=%d", peer, rec.Name, rec.ID, rec.Size)
		return Result{Peer: peer, Record: rec}, nil
	}

	c.metrics.Searches.WithLabelValues("not_found").Inc()
	return Result{}, fmt.Errorf("%w: id=%s peers=%d", ErrNotFound, fileID, len(peers))
}

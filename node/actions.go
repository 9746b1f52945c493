package node

import (
	"context"
	"fmt"

	"p2p-nebula/nebula/pkg/logger"
	"p2p-nebula/nebula/pkg/protocol"
	"p2p-nebula/nebula/pkg/storage"
	"p2p-nebula/nebula/pkg/transfer"
)

// SearchResult is the outcome of a user search. Local results were already
// in the store and Peer is unset.
type SearchResult struct {
	Record storage.FileRecord
	Peer   protocol.PeerAddress
	Local  bool
}

// AddFile copies path into the store and returns its content id.
func (n *Node) AddFile(path string) (string, error) {
	if err := n.ready(); err != nil {
		return "", err
	}
	id, err := n.store.AddLocalFile(path)
	if err != nil {
		return "", err
	}
	logger.Sugar.Infof("[Node] file added: path=%s id=%s", path, id)
	return id, nil
}

// Search resolves term against the local store first, by id or by name
// substring. On a miss term is taken as a file id and every known peer is
// asked for it in turn; the first holder's copy is downloaded.
func (n *Node) Search(ctx context.Context, term string, progress *transfer.Progress) (SearchResult, error) {
	if err := n.ready(); err != nil {
		return SearchResult{}, err
	}
	if term == "" {
		return SearchResult{}, fmt.Errorf("empty search term")
	}
	if rec, ok := n.store.LookupByTerm(term); ok {
		return SearchResult{Record: rec, Local: true}, nil
	}

	res, err := n.client.Search(ctx, n.table.Snapshot(), term, "", progress)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Record: res.Record, Peer: res.Peer}, nil
}

// Peers returns the currently known peers.
func (n *Node) Peers() []protocol.PeerAddress {
	if n.table == nil {
		return nil
	}
	return n.table.Snapshot()
}

// Files lists the local store.
func (n *Node) Files() []storage.FileRecord {
	if n.store == nil {
		return nil
	}
	return n.store.List()
}

func (n *Node) ready() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

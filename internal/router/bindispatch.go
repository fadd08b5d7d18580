package router

import (
	"tribfs"
	"tribfs/internal/binstore"
)

// BinDispatcher adapts a binstore.Dispatcher into tribfs.BinStorage and
// tribfs.FileSystemBinStorage: it hashes a bin name to a rotated replica
// ring and hands back a fresh ReliableStore or FSRouter bound to it. A
// bin handle is cheap and ephemeral by design (per binstore.Handle's own
// doc comment), so both Bin and FSBin build one per call rather than
// caching it.
type BinDispatcher struct {
	dispatcher *binstore.Dispatcher
	dial       Dial
}

// NewBinDispatcher builds a BinDispatcher over ring, dialing replicas
// with dial.
func NewBinDispatcher(ring []string, dial Dial) *BinDispatcher {
	return &BinDispatcher{dispatcher: binstore.New(ring), dial: dial}
}

// Bin satisfies tribfs.BinStorage: the auxiliary key-value/key-list
// capability for name's bin.
func (d *BinDispatcher) Bin(name string) (tribfs.Storage, error) {
	return New(d.dispatcher.Bin(name), d.dial), nil
}

// FSBin satisfies tribfs.FileSystemBinStorage: the filesystem-operation
// capability for name's bin.
func (d *BinDispatcher) FSBin(name string) (tribfs.ServerFileSystem, error) {
	return NewFS(d.dispatcher.Bin(name), d.dial), nil
}

var (
	_ tribfs.BinStorage           = (*BinDispatcher)(nil)
	_ tribfs.FileSystemBinStorage = (*BinDispatcher)(nil)
)

package state

import "github.com/ardanlabs/dpos/foundation/blockchain/database"

// headerCache holds the most recent headers in ascending height order. It
// is only touched from the orchestrator mutation path.
type headerCache struct {
	min     int
	max     int
	headers []*database.BlockHeader
}

func newHeaderCache(min int, max int) *headerCache {
	return &headerCache{min: min, max: max}
}

// add appends the header. Once the cache grows past max the oldest entries
// are dropped until min remain.
func (hc *headerCache) add(h *database.BlockHeader) {
	hc.headers = append(hc.headers, h)

	if len(hc.headers) > hc.max {
		drop := len(hc.headers) - hc.min
		hc.headers = append([]*database.BlockHeader(nil), hc.headers[drop:]...)
	}
}

// removeHead drops the newest header.
func (hc *headerCache) removeHead() {
	if len(hc.headers) == 0 {
		return
	}
	hc.headers = hc.headers[:len(hc.headers)-1]
}

// load replaces the content with the headers, keeping at most max of the
// newest ones.
func (hc *headerCache) load(headers []*database.BlockHeader) {
	if len(headers) > hc.max {
		headers = headers[len(headers)-hc.max:]
	}
	hc.headers = append([]*database.BlockHeader(nil), headers...)
}

func (hc *headerCache) len() int {
	return len(hc.headers)
}

// last returns the newest header.
func (hc *headerCache) last() (*database.BlockHeader, bool) {
	if len(hc.headers) == 0 {
		return nil, false
	}
	return hc.headers[len(hc.headers)-1], true
}

// items returns the headers in ascending height order.
func (hc *headerCache) items() []*database.BlockHeader {
	return append([]*database.BlockHeader(nil), hc.headers...)
}

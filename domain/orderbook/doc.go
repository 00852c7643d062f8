// Package orderbook implements the single-instrument limit order book:
// two red-black trees of FIFO price levels (bids best-high, asks
// best-low), an arena that owns every resting order, and the
// price-time-priority matcher.
//
// Every exported Book operation runs under one exclusive lock. Matching
// runs to completion while the lock is held and never performs I/O.
package orderbook

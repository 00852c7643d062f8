// Package service is the single write entry point of the engine. It ties
// the order book to the request journal and the trade outbox, and gives
// transports a byte-level API that never needs to know the book's types.
package service

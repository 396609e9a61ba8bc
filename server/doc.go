// Package server serves the RESP protocol over TCP.
//
// Server owns the listener and one goroutine per connection. Bytes read from
// a connection accumulate in a per-connection buffer; every complete request
// is decoded with protocol.Decode, executed by the Dispatcher and answered
// in order. A partial frame stays buffered until the rest arrives, so a
// request may be split across any number of reads.
//
// Dispatcher maps each protocol.Command onto the keyspace and the
// replication identity:
//
//	PING, ECHO, SET [PX|EX], GET, CONFIG GET, KEYS, INFO, REPLCONF, PSYNC
//
// Anything else is answered with -ERR unknown command and the connection
// stays open.
package server

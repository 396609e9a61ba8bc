// Package replication holds the replication identity of the server and the
// replica side of the primary/replica handshake.
//
// A server started as a replica dials its primary and walks the handshake:
//
//	PING                         -> +PONG
//	REPLCONF listening-port <p>  -> +OK
//	REPLCONF capa psync2         -> +OK
//	PSYNC ? -1                   -> +FULLRESYNC <replid> <offset>
//
// Handshake is the state machine over an already connected stream. Client
// owns the connection: it dials with a timeout, runs one handshake in the
// background and reports the outcome through its logger and metrics. A
// failed handshake is never retried and never stops the server.
//
// Basic usage:
//
//	client := replication.NewClient("localhost:6379", 6380)
//	client.SetLogger(log)
//	if err := client.Start(ctx); err != nil {
//		return err
//	}
//	defer client.Close()
//
// Streaming the snapshot and commands that follow FULLRESYNC is not
// implemented; the link is kept open once established.
package replication

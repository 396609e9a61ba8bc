// Package protocol implements the subset of the Redis Serialization
// Protocol (RESP2) spoken by the server.
//
// The server side is buffer oriented: bytes read from a connection are
// accumulated and handed to Decode, which either yields one Command and the
// number of bytes it used or reports ErrIncomplete. Blank lines skipped in
// front of an incomplete frame still count as used.
//
//	for {
//		cmd, n, err := protocol.Decode(buf)
//		buf = buf[n:]
//		if errors.Is(err, protocol.ErrIncomplete) {
//			break // read more
//		}
//		out = protocol.AppendResponse(out, dispatch(cmd))
//	}
//
// The client side (used by the replica handshake) is stream oriented:
// Writer.WriteCommand sends requests and Reader.ReadNext blocks for replies.
package protocol

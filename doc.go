// Package redisserver provides a small in-memory Redis-compatible server.
//
// The server speaks RESP2 over TCP, keeps string keys in memory with
// optional millisecond expiry, can seed its keyspace from an RDB snapshot
// at startup and, when configured as a replica, performs the replication
// handshake with a primary.
//
// Basic usage:
//
//	srv, err := redisserver.New(
//		redisserver.WithPort(6380),
//		redisserver.WithSnapshot("/var/lib/redis", "dump.rdb"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Close()
//
//	if err := srv.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// Supported commands are PING, ECHO, SET (with PX or EX), GET, CONFIG GET,
// KEYS, INFO, REPLCONF and PSYNC. Every other request is answered with an
// error and the connection stays open.
//
// The building blocks live in their own packages: protocol (RESP codec),
// storage (keyspace), rdb (snapshot decoder), server (dispatcher and
// listener), replication (handshake) and metrics (Prometheus endpoint).
// cmd/redis-server wraps them in a command line program.
package redisserver

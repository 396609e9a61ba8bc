// Package storage provides the keyspace of the server.
//
// MemoryStorage keeps string values in a map behind one mutex. Expiry is
// lazy: an entry past its deadline stays in the map until a read touches it,
// at which point it is deleted and reported missing.
//
//	s := storage.NewMemory()
//	s.SetWithTTL("session", []byte("abc"), 100*time.Millisecond)
//	value, ok := s.Get("session")
//
// Commands only reach Get, SetWithTTL and Keys. Del, Exists and FlushAll
// serve code that embeds the server and manipulates the keyspace through
// redisserver.Server.Storage.
package storage

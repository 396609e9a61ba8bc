// Package rdb decodes Redis RDB snapshot files.
//
// Only what is needed to seed the keyspace is understood: the header, aux
// fields, database selectors, resize hints, expiry prefixes and string
// values (plain, integer encoded or LZF compressed). Anything else stops
// decoding; the entries read up to that point are still returned.
package rdb

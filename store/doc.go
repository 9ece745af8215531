// Package store provides typed record tables with secondary indices over a
// wide-column row store.
//
// Lattice is designed for applications that keep structured records in a
// store offering only single-row atomic writes (DynamoDB, bbolt, memory)
// and still need to find those records by values other than their key.
//
// # Key Features
//
//   - Records encoded to flat cell bags by explicit codecs (package codec)
//   - Secondary indices declared per field with lookup strategies
//   - Index rows kept consistent by compensation instead of transactions
//   - Validate-only writes for "key must already be registered" rules
//   - Cascading deletes from an index row to the records it lists
//   - Change-stream repair of index drift (package stream)
//
// # Declaring Tables
//
// A [TableDef] names a table, its record codec and its primary key, and
// declares indices:
//
//	users := store.DefineTable("User", userCodec, func(u *User) cell.Key {
//	    return cell.Key{RowKey: lookup.IDHex(u.ID), PartitionKey: "users"}
//	}).Index("Name", lookup.Field(func(u *User) string { return u.Name },
//	    lookup.Text(lookup.HashPrefix(2)).IgnoreZero()))
//
//	reg := store.NewRegistry().MustRegister(users)
//	s := store.New(repo, reg, store.DefaultConfig())
//	tbl, err := store.Open(s, users)
//
// Unless [IndexTable] names it, an index lives in table {table}{field},
// prefixed with [Config.IndexTablePrefix].
//
// # Write Protocol
//
// Every write updates index rows first and the primary row last. When the
// primary write fails, the index changes are compensated before the error
// is returned, so at quiescence each index row lists exactly the records
// whose current keys address it.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - record doesn't exist
//   - [ErrAlreadyExists] - Insert found the key taken
//   - [ErrConflict] - record changed since it was read
//   - [ErrValidation] - InsertOrReplace found an index entry missing
//   - [ErrUnknownTable], [ErrUnknownIndex], [ErrDuplicateTable] - schema errors
package store

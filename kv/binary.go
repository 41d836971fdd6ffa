package kv

// BinaryStore is a collection of keyspaces that map opaque binary keys to
// binary values.
type BinaryStore = Store[[]byte, []byte]

// A BinaryKeyspace is an isolated collection of binary key/value pairs.
type BinaryKeyspace = Keyspace[[]byte, []byte]

// A BinaryRangeFunc is a function used to range over the key/value pairs in a
// [BinaryKeyspace].
type BinaryRangeFunc = RangeFunc[[]byte, []byte]

// BinaryInterceptor is an [Interceptor] for a [BinaryStore].
type BinaryInterceptor = Interceptor[[]byte, []byte]

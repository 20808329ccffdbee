// Package ring places metric keys on a static set of downstream shards.
//
// Every shard owns the span of ring positions from its ring index up to the next shard's ring
// index. A key is hashed onto a position in [0, size) and belongs to the shard with the greatest
// ring index not above that position. Positions below the lowest ring index wrap around to the
// shard with the highest ring index. Replicas are placed on the following shards in ring order.
package ring

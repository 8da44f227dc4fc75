package redis

// Key layout for one queue, all under {prefix}{name}:
//
//	queued      list of entry IDs, LPUSH in, RPOP out
//	working     zset of entry IDs scored by visibility deadline (unix ms)
//	delayed     zset of entry IDs scored by redelivery time (unix ms)
//	deadletter  list of entry IDs
//	stats       hash of lifetime counters
//	item:{id}   hash with value, attempts, enqueued_at

const defaultPrefix = "foundatio:queue:"

type keys struct {
	base string
}

func newKeys(prefix, name string) keys { return keys{base: prefix + name + ":"} }

func (k keys) queued() string        { return k.base + "queued" }
func (k keys) working() string       { return k.base + "working" }
func (k keys) delayed() string       { return k.base + "delayed" }
func (k keys) deadletter() string    { return k.base + "deadletter" }
func (k keys) stats() string         { return k.base + "stats" }
func (k keys) itemPrefix() string    { return k.base + "item:" }
func (k keys) item(id string) string { return k.itemPrefix() + id }

// Package cache owns the on-disk page artifacts. It translates a
// (host, uri, device class) key into CacheRoot/<host>[/mobile]/<uri>[index.html],
// writes artifacts with temp file + rename semantics, and provides the two
// tree-wide maintenance passes: the age-based Sweep and the unconditional
// ClearAll flush. File modification time is the only write timestamp.
package cache

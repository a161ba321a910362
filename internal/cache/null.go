package cache

import (
	"context"
	"time"
)

// NullCache is the disabled cache: every read misses and every write is dropped.
type NullCache struct{}

var _ Cache = NullCache{}

func (NullCache) Get(context.Context, string) ([]byte, bool)           { return nil, false }
func (NullCache) Set(context.Context, string, any, time.Duration) bool { return false }
func (NullCache) Delete(context.Context, string) bool                  { return false }
func (NullCache) DeleteByPrefix(context.Context, string) int           { return 0 }
func (NullCache) Close() error                                         { return nil }

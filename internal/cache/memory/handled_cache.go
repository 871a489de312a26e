// Package memory - LRU+TTL кэш ключей доставки (DeliveryKey) сообщений, которые handler уже успешно обработал.
// Повторная доставка такого сообщения (потерялся complete) завершается без повторной обработки.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
)

// Проверка, что кэш удовлетворяет порту.
var _ ports.HandledCache = (*HandledCache)(nil)

type entry struct {
	id        string
	expiresAt time.Time
}

type HandledCache struct {
	capacity int
	ttl      time.Duration

	ll    *list.List
	index map[string]*list.Element

	mu sync.Mutex
}

// NewHandledCache - ttl <= 0 означает хранение без срока (только вытеснение по LRU).
func NewHandledCache(capacity int, ttl time.Duration) *HandledCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &HandledCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Seen - сообщение с таким ключом недавно было обработано.
func (c *HandledCache) Seen(_ context.Context, key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		metrics.CacheOps.WithLabelValues("miss").Inc()
		return false
	}
	ent := elem.Value.(*entry)
	if c.isExpired(ent, now) {
		metrics.CacheOps.WithLabelValues("expired").Inc()
		c.removeElement(elem)
		metrics.CacheSize.Set(float64(len(c.index)))
		return false
	}
	c.ll.MoveToFront(elem)

	metrics.CacheOps.WithLabelValues("hit").Inc()
	return true
}

// Remember - запомнить успешно обработанное сообщение.
func (c *HandledCache) Remember(_ context.Context, key string) {
	if key == "" {
		return
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		ent := elem.Value.(*entry)
		ent.expiresAt = c.expiryFrom(now)
		c.ll.MoveToFront(elem)
		return
	}

	c.pruneExpiredFromBack(now)

	elem := c.ll.PushFront(&entry{id: key, expiresAt: c.expiryFrom(now)})
	c.index[key] = elem
	metrics.CacheSize.Set(float64(len(c.index)))

	if c.ll.Len() > c.capacity {
		c.evictLRU()
	}
}

// Len - текущее число записей.
func (c *HandledCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

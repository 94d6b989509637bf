package clock

import (
	"sync"
	"time"
)

// ServerClock представляет часы клиента, синхронизированные с сервером.
// Хранит смещение относительно локального времени и выдает строго
// возрастающие метки для записей журнала изменений.
type ServerClock struct {
	now       func() time.Time // источник локального времени
	offset    int64            // смещение серверного времени, мс
	lastStamp int64            // последняя выданная метка
	mu        sync.Mutex
}

// New создает часы с нулевым смещением
func New() *ServerClock {
	return &ServerClock{now: time.Now}
}

// NewWithSource создает часы с заданным источником времени.
// Используется в тестах.
func NewWithSource(now func() time.Time) *ServerClock {
	return &ServerClock{now: now}
}

// Now returns the current server time estimate
func (c *ServerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now().Add(time.Duration(c.offset) * time.Millisecond)
}

// Offset returns the server offset in milliseconds
func (c *ServerClock) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.offset
}

// SetOffset restores a persisted offset (e.g. after restart)
func (c *ServerClock) SetOffset(offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offset = offset
}

// SetServerTime computes the offset from a server timestamp in milliseconds
// and returns it so that the caller can persist it.
func (c *ServerClock) SetServerTime(serverMillis int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if serverMillis <= 0 {
		return c.offset
	}
	c.offset = serverMillis - c.now().UnixMilli()
	return c.offset
}

// Stamp returns a strictly increasing millisecond timestamp in server time.
// Две метки, взятые в одну миллисекунду, все равно различаются.
func (c *ServerClock) Stamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.now().UnixMilli() + c.offset
	if stamp <= c.lastStamp {
		stamp = c.lastStamp + 1
	}
	c.lastStamp = stamp
	return stamp
}

// Observe moves the stamp sequence past a timestamp read from storage,
// so that new stamps stay above records persisted by a previous run.
func (c *ServerClock) Observe(stamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stamp > c.lastStamp {
		c.lastStamp = stamp
	}
}

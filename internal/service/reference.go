package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const referenceTimeLayout = "20060102150405.000"

// ReferenceGenerator issues human readable reference numbers of the form
// TXN-<yyyyMMddHHmmssSSS>-<seq>-<rand>. References from one generator sort by
// creation time even when the clock repeats or steps back.
type ReferenceGenerator struct {
	mu   sync.Mutex
	last time.Time
	seq  int
}

// NewReferenceGenerator creates a new ReferenceGenerator.
func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{}
}

// Next returns the reference for a transaction created at now.
func (g *ReferenceGenerator) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UTC().Truncate(time.Millisecond)
	if ms.After(g.last) {
		g.last = ms
		g.seq = 0
	} else {
		g.seq++
	}

	stamp := strings.Replace(g.last.Format(referenceTimeLayout), ".", "", 1)
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("TXN-%s-%04d-%s", stamp, g.seq, suffix)
}

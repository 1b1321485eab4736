package engine

import (
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/models"
)

const (
	encryptingFirst = 1
	encryptingLast  = 95
)

// progressTracker merges per-file byte counts into one percentage that never
// goes down. The callback runs under the tracker's lock.
type progressTracker struct {
	mu    sync.Mutex
	fn    models.ProgressFunc
	total int64
	done  int64
	last  int
	phase models.EncryptionPhase
}

func newProgressTracker(fn models.ProgressFunc, total int64) *progressTracker {
	return &progressTracker{fn: fn, total: total, last: -1}
}

func (p *progressTracker) emit(phase models.EncryptionPhase, pct int) {
	if p.fn == nil {
		return
	}
	if pct < p.last || (pct == p.last && phase == p.phase) {
		return
	}
	p.last = pct
	p.phase = phase
	p.fn(models.EncryptionProgress{Phase: phase, Percentage: pct})
}

func (p *progressTracker) preparing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(models.PhasePreparing, 0)
}

// add records n more plaintext bytes as encrypted.
func (p *progressTracker) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += n
	pct := encryptingLast
	if p.total > 0 {
		pct = encryptingFirst + int(p.done*(encryptingLast-encryptingFirst)/p.total)
	}
	if pct > encryptingLast {
		pct = encryptingLast
	}
	p.emit(models.PhaseEncrypting, pct)
}

func (p *progressTracker) finalizing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(models.PhaseFinalizing, 100)
}

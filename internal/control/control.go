// Package control shares per-site cache generations between processes
// through a small memory-mapped file. A process that changes pages bumps
// the site's generation; serving processes watch the board and drop
// their cached trees for the sites that moved.
package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	BoardSize = 4096       // 1 page
	Magic     = 0x50475442 // 'PGTB'
	Slots     = (BoardSize - 16) / 16
)

// ErrFull is returned by Bump when every slot is claimed by other sites.
var ErrFull = errors.New("control board has no free site slot")

type slot struct {
	Site       uint64 // 0 = free; claimed once, never released
	Generation uint64 // Atomic
}

// block is the layout of the mapped file.
type block struct {
	Magic   uint32
	Version uint32
	Epoch   uint64 // Atomic, bumped with any slot
	Slots   [Slots]slot
}

// Board is an open control file.
type Board struct {
	path string
	file *os.File
	data []byte
	ptr  *block
}

// PathFor returns the control file used alongside a database.
func PathFor(database string) string {
	return database + ".ctl"
}

// OpenOrCreate opens or creates a control file at the given path.
func OpenOrCreate(path string) (*Board, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open control file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	if info.Size() < BoardSize {
		if err := f.Truncate(BoardSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, BoardSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	ptr := (*block)(unsafe.Pointer(&data[0]))

	if atomic.CompareAndSwapUint32(&ptr.Magic, 0, Magic) {
		ptr.Version = 1
	} else if atomic.LoadUint32(&ptr.Magic) != Magic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("invalid magic: %x", ptr.Magic)
	}

	return &Board{path: path, file: f, data: data, ptr: ptr}, nil
}

func (b *Board) Path() string { return b.path }

// Generation returns the current generation of a site, 0 if it was
// never bumped.
func (b *Board) Generation(siteID int64) uint64 {
	for i := range b.ptr.Slots {
		s := &b.ptr.Slots[i]
		switch atomic.LoadUint64(&s.Site) {
		case uint64(siteID):
			return atomic.LoadUint64(&s.Generation)
		case 0:
			return 0
		}
	}
	return 0
}

// Bump advances the generation of a site, claiming a slot for it on
// first use, and returns the new generation.
func (b *Board) Bump(siteID int64) (uint64, error) {
	if siteID <= 0 {
		return 0, fmt.Errorf("bump site %d: invalid site id", siteID)
	}
	id := uint64(siteID)
	for i := range b.ptr.Slots {
		s := &b.ptr.Slots[i]
		owner := atomic.LoadUint64(&s.Site)
		if owner == 0 && atomic.CompareAndSwapUint64(&s.Site, 0, id) {
			owner = id
		} else if owner == 0 {
			owner = atomic.LoadUint64(&s.Site)
		}
		if owner != id {
			continue
		}
		g := atomic.AddUint64(&s.Generation, 1)
		atomic.AddUint64(&b.ptr.Epoch, 1)
		return g, nil
	}
	return 0, ErrFull
}

// Snapshot returns the generation of every site on the board.
func (b *Board) Snapshot() map[int64]uint64 {
	out := make(map[int64]uint64)
	for i := range b.ptr.Slots {
		s := &b.ptr.Slots[i]
		id := atomic.LoadUint64(&s.Site)
		if id == 0 {
			break
		}
		out[int64(id)] = atomic.LoadUint64(&s.Generation)
	}
	return out
}

// Watch polls the board every interval and calls changed for each site
// whose generation moved since the previous poll. It returns when ctx is
// done.
func (b *Board) Watch(ctx context.Context, interval time.Duration, changed func(siteID int64)) {
	epoch := atomic.LoadUint64(&b.ptr.Epoch)
	last := b.Snapshot()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		e := atomic.LoadUint64(&b.ptr.Epoch)
		if e == epoch {
			continue
		}
		epoch = e

		cur := b.Snapshot()
		for site, g := range cur {
			if last[site] != g {
				changed(site)
			}
		}
		last = cur
	}
}

// Close unmaps and closes the control file.
func (b *Board) Close() error {
	if err := unix.Munmap(b.data); err != nil {
		return err
	}
	return b.file.Close()
}

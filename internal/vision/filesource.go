package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smartretail/scanpos/internal/fsutil"
	"github.com/smartretail/scanpos/internal/timeutil"
)

// FileSource is a dev-mode Source that cycles JPEG fixtures from a directory
// at a fixed interval, so the full pipeline can run without camera hardware.
// Fixtures are served in lexical order and loop forever.
type FileSource struct {
	dir      string
	interval time.Duration
	clock    timeutil.Clock
	fs       fsutil.FileSystem

	frames   []image.Image
	slot     frameSlot
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFileSource creates a FileSource over the JPEG files in dir.
func NewFileSource(dir string, interval time.Duration, clock timeutil.Clock) *FileSource {
	return NewFileSourceWithFS(dir, interval, clock, fsutil.OSFileSystem{})
}

// NewFileSourceWithFS is NewFileSource over an explicit filesystem, so tests
// can serve fixtures from memory.
func NewFileSourceWithFS(dir string, interval time.Duration, clock timeutil.Clock, fs fsutil.FileSystem) *FileSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FileSource{dir: dir, interval: interval, clock: clock, fs: fs}
}

// Start loads the fixtures and begins cycling them. A directory with no
// decodable JPEG is a startup failure, same as a camera that will not open.
func (s *FileSource) Start(ctx context.Context) error {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read fixtures dir %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dir, name)
		// a symlinked entry must not pull frames from outside the
		// fixtures directory
		if err := s.fs.WithinDir(path, s.dir); err != nil {
			continue
		}
		data, err := s.fs.ReadFile(path)
		if err != nil {
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		s.frames = append(s.frames, img)
	}
	if len(s.frames) == 0 {
		return fmt.Errorf("no decodable JPEG fixtures in %s", s.dir)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.cycle(ctx)
	return nil
}

// Latest returns the most recent fixture frame.
func (s *FileSource) Latest() (Frame, bool) {
	return s.slot.get()
}

// Stop halts the fixture loop. Idempotent.
func (s *FileSource) Stop() error {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
	return nil
}

func (s *FileSource) cycle(ctx context.Context) {
	defer s.wg.Done()

	// Publish the first frame immediately so Latest is usable right after
	// Start, mirroring a camera that delivers its first frame on open.
	i := 0
	s.slot.put(NewFrame(s.frames[i], s.clock.Now()))

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			i = (i + 1) % len(s.frames)
			s.slot.put(NewFrame(s.frames[i], s.clock.Now()))
		}
	}
}

// Package filereader loads gateway traces from files on disk and keeps
// loading as they grow. Two formats are understood: the gateway's native
// trace JSON (.json files and .jsonl lines) and OTLP JSON written by the
// OpenTelemetry Collector's file exporter (.jsonl lines containing
// resourceSpans). Loaded traces land in the same storage as the gRPC
// receiver, so everything downstream works unchanged.
package filereader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/mcpany/tracelens/internal/otlpreceiver"
	"github.com/mcpany/tracelens/internal/trace"
)

const (
	// Buffer sizes for JSONL line scanning. Traces with large payloads
	// can produce long lines.
	jsonlBufferInitial = 1 * 1024 * 1024  // 1MB initial buffer
	jsonlBufferMax     = 10 * 1024 * 1024 // 10MB maximum line size
)

// Sink receives loaded traces. Matches storage.TraceStorage.
type Sink interface {
	Add(tr *trace.Trace)
}

// Config holds configuration for a FileSource.
type Config struct {
	Directory string // directory containing .json / .jsonl trace files
	Verbose   bool   // enable verbose logging
}

// FileSource reads trace files from a directory and watches for new data.
// JSONL files are tailed from the last read offset; whole-object JSON
// files are reloaded when their size changes.
type FileSource struct {
	directory string
	sink      Sink
	verbose   bool

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	fileOffsets map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a FileSource reading from the given directory.
func New(cfg Config, sink Sink) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileSource{
		directory:   cfg.Directory,
		sink:        sink,
		verbose:     cfg.Verbose,
		watcher:     watcher,
		fileOffsets: make(map[string]int64),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start loads existing files and begins watching for changes. It returns
// after the initial load completes; watching continues in the background.
func (fs *FileSource) Start(ctx context.Context) error {
	if err := fs.watcher.Add(fs.directory); err != nil {
		return fmt.Errorf("failed to watch %s: %w", fs.directory, err)
	}
	if fs.verbose {
		log.Printf("📁 FileSource: watching %s\n", fs.directory)
	}

	files, err := fs.findTraceFiles()
	if err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}
	for _, file := range files {
		count, err := fs.loadFile(ctx, file)
		if err != nil {
			log.Printf("⚠️  FileSource: error loading %s: %v\n", file, err)
			continue
		}
		if fs.verbose && count > 0 {
			log.Printf("📁 FileSource: loaded %d traces from %s\n", count, filepath.Base(file))
		}
	}

	fs.wg.Add(1)
	go fs.watchLoop()

	return nil
}

// Stop stops the file watcher and waits for goroutines to finish.
func (fs *FileSource) Stop() {
	fs.cancel()
	fs.watcher.Close()
	fs.wg.Wait()
}

// Directory returns the directory being watched.
func (fs *FileSource) Directory() string {
	return fs.directory
}

func isTraceFile(name string) bool {
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".jsonl")
}

// findTraceFiles returns trace files sorted by modification time, oldest
// first, so initial load preserves chronology.
func (fs *FileSource) findTraceFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.directory)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() || !isTraceFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(fs.directory, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	result := make([]string, len(files))
	for i, f := range files {
		result[i] = f.path
	}
	return result, nil
}

// loadFile dispatches on extension: .jsonl files are tailed line by line,
// .json files hold one trace object or an array and are loaded whole.
func (fs *FileSource) loadFile(ctx context.Context, path string) (int, error) {
	if strings.HasSuffix(path, ".jsonl") {
		return fs.loadLinesFile(ctx, path)
	}
	return fs.loadWholeFile(path)
}

// loadWholeFile loads a .json file when its size changed since last load.
func (fs *FileSource) loadWholeFile(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	fs.mu.Lock()
	unchanged := fs.fileOffsets[path] == info.Size()
	fs.mu.Unlock()
	if unchanged {
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	traces, err := trace.ParseTraces(data)
	if err != nil {
		return 0, err
	}
	for _, tr := range traces {
		fs.sink.Add(tr)
	}

	fs.mu.Lock()
	fs.fileOffsets[path] = info.Size()
	fs.mu.Unlock()

	return len(traces), nil
}

// loadLinesFile reads a JSONL file from the last known offset.
func (fs *FileSource) loadLinesFile(ctx context.Context, path string) (int, error) {
	fs.mu.Lock()
	offset := fs.fileOffsets[path]
	fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			// File might have been rotated, start from the beginning.
			offset = 0
		}
	}

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, jsonlBufferInitial)
	scanner.Buffer(buf, jsonlBufferMax)

	count := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		n, err := fs.loadLine(line)
		if err != nil {
			// Log but continue; one bad line must not stop the tail.
			if fs.verbose {
				log.Printf("⚠️  FileSource: bad line in %s: %v\n", filepath.Base(path), err)
			}
			continue
		}
		count += n
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading %s: %w", path, err)
	}

	newOffset, _ := file.Seek(0, io.SeekCurrent)
	fs.mu.Lock()
	fs.fileOffsets[path] = newOffset
	fs.mu.Unlock()

	return count, nil
}

// loadLine decodes one JSONL line in either supported format.
func (fs *FileSource) loadLine(line []byte) (int, error) {
	if bytes.Contains(line, []byte(`"resourceSpans"`)) {
		var data tracepb.TracesData
		if err := protojson.Unmarshal(line, &data); err != nil {
			return 0, fmt.Errorf("parse OTLP JSON: %w", err)
		}
		traces := otlpreceiver.Assemble(data.ResourceSpans)
		for _, tr := range traces {
			fs.sink.Add(tr)
		}
		return len(traces), nil
	}

	tr, err := trace.ParseTrace(line)
	if err != nil {
		return 0, err
	}
	fs.sink.Add(tr)
	return 1, nil
}

// watchLoop runs the file watcher event loop.
func (fs *FileSource) watchLoop() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isTraceFile(event.Name) {
				continue
			}

			count, err := fs.loadFile(fs.ctx, event.Name)
			if err != nil {
				log.Printf("⚠️  FileSource: error reading %s: %v\n", event.Name, err)
			} else if fs.verbose && count > 0 {
				log.Printf("📁 FileSource: loaded %d new traces from %s\n", count, filepath.Base(event.Name))
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  FileSource: watcher error: %v\n", err)
		}
	}
}

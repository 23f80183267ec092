// Package filereader feeds spans and outcome metrics from JSONL files written
// by the OpenTelemetry Collector's file exporter into storage, the same way
// the gRPC receiver does.
package filereader

import (
	"bufio"
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
	"google.golang.org/protobuf/encoding/protojson"

	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

const (
	// OTLP JSON lines can be large for batched spans with many attributes.
	jsonlBufferInitial = 1 * 1024 * 1024
	jsonlBufferMax     = 10 * 1024 * 1024
)

// Receiver is what the file source feeds. storage.Store implements it.
type Receiver interface {
	ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error
	ReceiveMetrics(ctx context.Context, resourceMetrics []*metricspb.ResourceMetrics) error
}

// signal is one subdirectory of the source directory and how to decode its lines.
type signal struct {
	name   string
	decode func(ctx context.Context, r Receiver, line []byte) error
}

var signals = []signal{
	{"traces", decodeTraces},
	{"metrics", decodeMetrics},
}

func signalFor(name string) (signal, bool) {
	for _, s := range signals {
		if s.name == name {
			return s, true
		}
	}
	return signal{}, false
}

func decodeTraces(ctx context.Context, r Receiver, line []byte) error {
	var data tracepb.TracesData
	if err := protojson.Unmarshal(line, &data); err != nil {
		return fmt.Errorf("parse trace JSON: %w", err)
	}
	if len(data.ResourceSpans) == 0 {
		return nil
	}
	return r.ReceiveSpans(ctx, data.ResourceSpans)
}

func decodeMetrics(ctx context.Context, r Receiver, line []byte) error {
	var data metricspb.MetricsData
	if err := protojson.Unmarshal(line, &data); err != nil {
		return fmt.Errorf("parse metric JSON: %w", err)
	}
	if len(data.ResourceMetrics) == 0 {
		return nil
	}
	return r.ReceiveMetrics(ctx, data.ResourceMetrics)
}

// FileSource reads spans and metrics from a directory of JSONL files and
// keeps following them as the collector appends.
type FileSource struct {
	directory  string
	receiver   Receiver
	verbose    bool
	activeOnly bool

	watcher *fsnotify.Watcher

	// Read positions, so appends are read exactly once.
	mu          sync.Mutex
	fileOffsets map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration for a FileSource.
type Config struct {
	Directory string // contains traces/ and metrics/
	Verbose   bool

	// ActiveOnly loads only traces.jsonl and metrics.jsonl, skipping rotated
	// archives such as traces-2025-12-09T13-10-56.jsonl.
	ActiveOnly bool
}

// New creates a FileSource reading from cfg.Directory.
func New(cfg Config, receiver Receiver) (*FileSource, error) {
	if err := checkDir(cfg.Directory); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileSource{
		directory:   cfg.Directory,
		receiver:    receiver,
		verbose:     cfg.Verbose,
		activeOnly:  cfg.ActiveOnly,
		watcher:     watcher,
		fileOffsets: make(map[string]int64),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

func checkDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Load reads every JSONL file under cfg.Directory once, without watching.
// It returns the number of lines loaded.
func Load(ctx context.Context, cfg Config, receiver Receiver) (int, error) {
	if err := checkDir(cfg.Directory); err != nil {
		return 0, err
	}
	fs := &FileSource{
		directory:   cfg.Directory,
		receiver:    receiver,
		verbose:     cfg.Verbose,
		activeOnly:  cfg.ActiveOnly,
		fileOffsets: make(map[string]int64),
	}
	return fs.loadAll(ctx)
}

// Start watches the signal directories and loads existing data. It returns
// after the initial load; watching continues in the background until Stop.
func (fs *FileSource) Start(ctx context.Context) error {
	if fs.verbose {
		log.Printf("📁 FileSource: starting with directory %s\n", fs.directory)
	}

	for _, sig := range signals {
		dir := filepath.Join(fs.directory, sig.name)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fs.watcher.Add(dir); err != nil {
			log.Printf("⚠️  FileSource: could not watch %s: %v\n", dir, err)
		} else if fs.verbose {
			log.Printf("📁 FileSource: watching %s\n", dir)
		}
	}

	if _, err := fs.loadAll(ctx); err != nil {
		return fmt.Errorf("initial data load failed: %w", err)
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

// Directory returns the base directory being watched.
func (fs *FileSource) Directory() string {
	return fs.directory
}

func (fs *FileSource) loadAll(ctx context.Context) (int, error) {
	total := 0
	for _, sig := range signals {
		files, err := fs.findJSONLFiles(filepath.Join(fs.directory, sig.name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return total, err
		}

		for _, file := range files {
			count, err := fs.processFile(ctx, file, sig)
			total += count
			if err != nil {
				log.Printf("⚠️  FileSource: error loading %s: %v\n", file, err)
				continue
			}
			if fs.verbose && count > 0 {
				log.Printf("📁 FileSource: loaded %d %s from %s\n", count, sig.name, filepath.Base(file))
			}
		}
	}
	return total, nil
}

func isJSONL(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.Contains(name, ".jsonl.")
}

// findJSONLFiles returns .jsonl files in dir, oldest first.
func (fs *FileSource) findJSONLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	activeFileName := filepath.Base(dir) + ".jsonl"

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isJSONL(name) {
			continue
		}
		if fs.activeOnly && name != activeFileName {
			if fs.verbose {
				log.Printf("📁 FileSource: skipping archived file %s (activeOnly mode)\n", name)
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, name), modTime: info.ModTime()})
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

// processFile reads path from its last known offset and decodes each line.
// Bad lines are skipped. Returns the number of lines decoded.
func (fs *FileSource) processFile(ctx context.Context, path string, sig signal) (int, error) {
	fs.mu.Lock()
	offset := fs.fileOffsets[path]
	fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && info.Size() < offset {
		// Truncated or rotated in place.
		offset = 0
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			offset = 0
		}
	}

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, jsonlBufferInitial)
	scanner.Buffer(buf, jsonlBufferMax)

	count := 0
	read := offset
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		line := scanner.Bytes()
		read += int64(len(line)) + 1
		if len(line) == 0 {
			continue
		}

		if err := sig.decode(ctx, fs.receiver, line); err != nil {
			if fs.verbose {
				log.Printf("⚠️  FileSource: error processing line in %s: %v\n", filepath.Base(path), err)
			}
			continue
		}
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading %s: %w", path, err)
	}

	fs.mu.Lock()
	fs.fileOffsets[path] = read
	fs.mu.Unlock()

	return count, nil
}

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
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isJSONL(event.Name) {
				continue
			}

			sig, ok := signalFor(filepath.Base(filepath.Dir(event.Name)))
			if !ok {
				continue
			}

			count, err := fs.processFile(fs.ctx, event.Name, sig)
			if err != nil {
				log.Printf("⚠️  FileSource: error reading %s: %v\n", event.Name, err)
			} else if fs.verbose && count > 0 {
				log.Printf("📁 FileSource: loaded %d new %s from %s\n", count, sig.name, filepath.Base(event.Name))
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  FileSource: watcher error: %v\n", err)
		}
	}
}

// Stats describes what the file source is following.
type Stats struct {
	Directory    string   `json:"directory"`
	WatchedDirs  []string `json:"watched_dirs"`
	FilesTracked int      `json:"files_tracked"`
}

// Stats returns current statistics.
func (fs *FileSource) Stats() Stats {
	fs.mu.Lock()
	filesTracked := len(fs.fileOffsets)
	fs.mu.Unlock()

	var watched []string
	if fs.watcher != nil {
		watched = fs.watcher.WatchList()
	}
	return Stats{
		Directory:    fs.directory,
		WatchedDirs:  watched,
		FilesTracked: filesTracked,
	}
}

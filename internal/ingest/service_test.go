// service_test is responsible for ensuring that videos on the
// host filesystem are correctly detected and submitted, both by
// the initial scan and the directory watcher. Processing of the
// submitted tasks is not performed.
package ingest_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ankit-pn/video-ocr-service/internal/dispatch"
	"github.com/ankit-pn/video-ocr-service/internal/event"
	"github.com/ankit-pn/video-ocr-service/internal/ingest"
	"github.com/ankit-pn/video-ocr-service/internal/stats"
	"github.com/ankit-pn/video-ocr-service/internal/task"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/ankit-pn/video-ocr-service/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type recordingSubmitter struct {
	sync.Mutex
	descriptors []task.Descriptor
}

func (s *recordingSubmitter) Submit(_ context.Context, d task.Descriptor) error {
	s.Lock()
	defer s.Unlock()
	s.descriptors = append(s.descriptors, d)
	return nil
}

func (s *recordingSubmitter) paths() []string {
	s.Lock()
	defer s.Unlock()
	paths := make([]string, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		paths = append(paths, d.Path)
	}

	sort.Strings(paths)
	return paths
}

func newService(t *testing.T, root string, strategy task.KeyStrategy) (*ingest.Service, *recordingSubmitter, *stats.Counters) {
	submitter := &recordingSubmitter{}
	counters := stats.New()
	srv, err := ingest.New(ingest.Config{Path: root, Extensions: []string{".mp4"}, KeyStrategy: strategy}, submitter, counters)
	require.NoError(t, err)

	return srv, submitter, counters
}

// startService runs the service until the test completes.
func startService(t *testing.T, srv *ingest.Service) {
	wg := sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		assert.NoError(t, srv.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func Test_FilterMatchesCaseInsensitively(t *testing.T) {
	t.Parallel()
	filter := ingest.NewFilter([]string{".mp4", "MKV"})

	assert.True(t, filter.Matches("/videos/clip.mp4"))
	assert.True(t, filter.Matches("/videos/CLIP.MP4"))
	assert.True(t, filter.Matches("/videos/clip.mkv"))
	assert.False(t, filter.Matches("/videos/notes.txt"))
	assert.False(t, filter.Matches("/videos/mp4"))
	assert.False(t, filter.Matches("/videos/clip.mp4.part"))
}

func Test_ScanSubmitsOnlyEligibleFiles(t *testing.T) {
	t.Parallel()
	root, files := helpers.TempDirWithFiles(t, []string{"a.mp4", "nested/b.MP4", "nested/deeper/c.mp4", "notes.txt", "nested/d.mkv"})
	srv, submitter, counters := newService(t, root, task.KeyBasename)

	submitted, err := srv.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, submitted)
	assert.EqualValues(t, 3, counters.Eligible())
	assert.Equal(t, []string{files[0], files[1], files[2]}, submitter.paths())
}

func Test_ScanUsesKeyStrategy(t *testing.T) {
	t.Parallel()
	root, _ := helpers.TempDirWithFiles(t, []string{"a/clip.mp4", "b/clip.mp4"})

	srv, submitter, _ := newService(t, root, task.KeyBasename)
	_, err := srv.Scan(context.Background())
	require.NoError(t, err)
	for _, d := range submitter.descriptors {
		assert.Equal(t, "clip", d.Key)
	}

	srv, submitter, _ = newService(t, root, task.KeyRelativePath)
	_, err = srv.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, submitter.descriptors, 2)
	assert.NotEqual(t, submitter.descriptors[0].Key, submitter.descriptors[1].Key)
}

func Test_WalkSkipsUnreadableDirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed when running as root")
	}

	t.Parallel()
	root, files := helpers.TempDirWithFiles(t, []string{"open/a.mp4", "locked/b.mp4"})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	found := make([]string, 0)
	err := ingest.Walk(root, ingest.NewFilter([]string{".mp4"}), func(path string) error {
		found = append(found, path)
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{files[0]}, found)
}

func Test_CountEligible(t *testing.T) {
	t.Parallel()
	root, _ := helpers.TempDirWithFiles(t, []string{"a.mp4", "b.txt", "c/d.mp4", "c/e.jpg"})

	count, err := ingest.CountEligible(root, ingest.NewFilter([]string{".mp4"}))
	assert.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = ingest.CountEligible(filepath.Join(root, "missing"), ingest.NewFilter([]string{".mp4"}))
	assert.Error(t, err)
}

func Test_NewRejectsFilePath(t *testing.T) {
	t.Parallel()
	_, files := helpers.TempDirWithFiles(t, []string{"not-a-dir.mp4"})

	_, err := ingest.New(ingest.Config{Path: files[0]}, &recordingSubmitter{}, stats.New())
	assert.Error(t, err)
}

func Test_NewCreatesMissingDirectory(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "videos")

	srv, err := ingest.New(ingest.Config{Path: root}, &recordingSubmitter{}, stats.New())
	require.NoError(t, err)
	assert.DirExists(t, srv.Root())
}

func Test_RunSubmitsExistingAndCreatedVideos(t *testing.T) {
	t.Parallel()
	root, existing := helpers.TempDirWithFiles(t, []string{"existing.mp4", "ignored.txt"})
	srv, submitter, counters := newService(t, root, task.KeyBasename)
	startService(t, srv)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Equal(c, []string{existing[0]}, submitter.paths())
		assert.EqualValues(c, 1, counters.Eligible())
	}, 5*time.Second, 20*time.Millisecond)

	created := helpers.CreateFile(t, root, "new.mp4")
	helpers.CreateFile(t, root, "new.txt")
	require.NoError(t, os.Mkdir(filepath.Join(root, "folder.mp4"), 0o755))

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Equal(c, []string{existing[0], created}, submitter.paths())
		assert.EqualValues(c, 2, counters.Eligible())
	}, 5*time.Second, 20*time.Millisecond)

	// Ensure the ignored paths did not result in a late submission
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, submitter.paths(), 2)
}

func Test_RunWatchesNestedDirectories(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	srv, submitter, counters := newService(t, root, task.KeyBasename)
	startService(t, srv)

	// Each new directory must be picked up by the watcher before
	// anything is created inside of it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Mkdir(filepath.Join(root, "season"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Mkdir(filepath.Join(root, "season", "one"), 0o755))
	time.Sleep(100 * time.Millisecond)
	created := helpers.CreateFile(t, root, "season/one/episode.mp4")

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Contains(c, submitter.paths(), created)
		assert.EqualValues(c, 1, counters.Eligible())
	}, 5*time.Second, 20*time.Millisecond)
}

// slowSubmitter records the distinct paths submitted, taking a fixed time
// over each submission.
type slowSubmitter struct {
	sync.Mutex
	delay time.Duration
	seen  map[string]struct{}
}

func (s *slowSubmitter) Submit(_ context.Context, d task.Descriptor) error {
	time.Sleep(s.delay)
	s.Lock()
	defer s.Unlock()
	s.seen[d.Path] = struct{}{}
	return nil
}

func (s *slowSubmitter) count() int {
	s.Lock()
	defer s.Unlock()
	return len(s.seen)
}

func Test_VideosCreatedDuringSlowScanAreSubmitted(t *testing.T) {
	t.Parallel()
	existing := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		existing = append(existing, fmt.Sprintf("existing-%03d.mp4", i))
	}
	root, _ := helpers.TempDirWithFiles(t, existing)

	submitter := &slowSubmitter{delay: 5 * time.Millisecond, seen: make(map[string]struct{})}
	srv, err := ingest.New(ingest.Config{Path: root, Extensions: []string{".mp4"}}, submitter, stats.New())
	require.NoError(t, err)
	startService(t, srv)

	// Create a burst of videos, larger than the watch buffer, while the
	// initial scan is still submitting.
	require.Eventually(t, func() bool { return submitter.count() > 0 }, 5*time.Second, time.Millisecond)
	for i := 0; i < 600; i++ {
		helpers.CreateFile(t, root, fmt.Sprintf("created-%03d.mp4", i))
	}

	assert.Eventually(t, func() bool { return submitter.count() == 700 }, 20*time.Second, 50*time.Millisecond,
		"every existing and created video should be submitted")
}

// cancellingSubmitter forwards submissions, cancelling the context after
// a fixed number of them.
type cancellingSubmitter struct {
	next   ingest.Submitter
	after  int
	count  int
	cancel context.CancelFunc
}

func (s *cancellingSubmitter) Submit(ctx context.Context, d task.Descriptor) error {
	if err := s.next.Submit(ctx, d); err != nil {
		return err
	}

	s.count++
	if s.count == s.after {
		s.cancel()
	}

	return nil
}

func Test_CancellationDuringLargeScanStopsPromptly(t *testing.T) {
	t.Parallel()
	names := make([]string, 0, 300)
	for i := 0; i < 300; i++ {
		names = append(names, fmt.Sprintf("video-%03d.mp4", i))
	}
	root, _ := helpers.TempDirWithFiles(t, names)

	// A subscriber which stops reading once the service is cancelled, and
	// never unsubscribes.
	bus := event.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subscriber := make(event.HandlerChannel, 100)
	bus.RegisterHandlerChannel(subscriber, event.TASK_QUEUED)
	go func() {
		for {
			select {
			case <-subscriber:
			case <-ctx.Done():
				return
			}
		}
	}()

	// The workers are never started, so every submission stays queued.
	dispatcher := dispatch.New(dispatch.Config{Workers: 2}, nil, bus)
	submitter := &cancellingSubmitter{next: dispatcher, after: 150, cancel: cancel}
	srv, err := ingest.New(ingest.Config{Path: root, Extensions: []string{".mp4"}}, submitter, stats.New())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("ingest service still running 5s after cancellation (pending=%d)", dispatcher.Pending())
	}

	assert.Equal(t, 150, dispatcher.Pending(), "the scan should stop submitting once cancelled")
	assert.Equal(t, 150, dispatcher.Close())
}

package organizer_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tagflow/internal/logging"
	"tagflow/internal/organizer"
	"tagflow/internal/store"
	"tagflow/internal/testsupport"
)

type fixture struct {
	db      *store.Store
	org     *organizer.Organizer
	library string
	backup  string
	source  string
}

func newFixture(t *testing.T, dryRun bool) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "incoming")
	if err := os.MkdirAll(source, 0o755); err != nil {
		t.Fatal(err)
	}

	opts := organizer.OptionsFromConfig(cfg, dryRun)
	return &fixture{
		db:      db,
		org:     organizer.New(opts, db, logging.NewNop()),
		library: cfg.Paths.LibraryRoot,
		backup:  cfg.Paths.BackupRoot,
		source:  source,
	}
}

// writeTrackFile creates a fake audio file. The .wav extension keeps the tag
// writer out of the picture so tests control the exact bytes.
func (f *fixture) writeTrackFile(t *testing.T, name string, content []byte) *store.Track {
	t.Helper()
	path := filepath.Join(f.source, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	track := testsupport.NewTrack(t, f.db, "batch-1", path)
	track.Title = "Here Comes The Sun"
	track.Artist = "The Beatles"
	track.Album = "Abbey Road"
	track.Year = 1969
	track.TrackNumber = 7
	track.SizeBytes = int64(len(content))
	return track
}

func TestApplyMovesBacksUpAndLedgers(t *testing.T) {
	f := newFixture(t, false)
	content := []byte("original-audio-bytes")
	track := f.writeTrackFile(t, "07 - sun.wav", content)

	record, err := f.org.Apply(context.Background(), track, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	wantDest := filepath.Join(f.library, "The Beatles", "Abbey Road (1969)", "07 - Here Comes The Sun.wav")
	if track.DestPath != wantDest {
		t.Fatalf("dest = %q, want %q", track.DestPath, wantDest)
	}
	got, err := os.ReadFile(wantDest)
	if err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("destination bytes differ from source")
	}
	if _, err := os.Stat(track.SourcePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("source should be gone after move")
	}

	// Backup precedes mutation and is byte-equal to the original.
	if record.BackupPath == "" {
		t.Fatal("expected a backup path")
	}
	backup, err := os.ReadFile(record.BackupPath)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if !bytes.Equal(backup, content) {
		t.Fatal("backup bytes differ from pre-mutation source")
	}
	if !strings.HasSuffix(record.BackupPath, ".bak") {
		t.Fatalf("backup lacks .bak suffix: %s", record.BackupPath)
	}

	// Ledger completeness: exactly one reversible record pointing at the
	// destination.
	records, err := f.db.MovesForBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one ledger record, got %d", len(records))
	}
	if records[0].CurrentPath != wantDest || records[0].Reversal != store.ReversalReversible {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t, true)
	content := []byte("untouchable")
	track := f.writeTrackFile(t, "07 - sun.wav", content)

	record, err := f.org.Apply(context.Background(), track, nil)
	if err != nil {
		t.Fatalf("dry-run apply: %v", err)
	}
	if !record.DryRun {
		t.Fatal("expected a speculative record")
	}
	if record.CurrentPath == "" {
		t.Fatal("plan should name the intended destination")
	}

	// Source unchanged, destination absent, no backup.
	got, err := os.ReadFile(track.SourcePath)
	if err != nil || !bytes.Equal(got, content) {
		t.Fatal("dry run modified the source")
	}
	if _, err := os.Stat(record.CurrentPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("dry run created the destination")
	}
	if entries, _ := os.ReadDir(f.backup); len(entries) != 0 {
		t.Fatal("dry run wrote backups")
	}
}

func TestApplyDuplicateDestinationSkips(t *testing.T) {
	f := newFixture(t, false)
	content := []byte("same-size-content!")
	track := f.writeTrackFile(t, "07 - sun.wav", content)

	dest := f.org.BuildDestination(track)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := f.org.Apply(context.Background(), track, nil)
	if !errors.Is(err, organizer.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, statErr := os.Stat(track.SourcePath); statErr != nil {
		t.Fatal("source must be left in place on duplicate")
	}
}

func TestApplyCollisionGetsSuffix(t *testing.T) {
	f := newFixture(t, false)
	track := f.writeTrackFile(t, "07 - sun.wav", []byte("new-version-longer-bytes"))

	dest := f.org.BuildDestination(track)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("different"), 0o644); err != nil {
		t.Fatal(err)
	}

	record, err := f.org.Apply(context.Background(), track, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if record.CurrentPath == dest {
		t.Fatal("collision should have produced a suffixed path")
	}
	if !strings.Contains(filepath.Base(record.CurrentPath), " (1)") {
		t.Fatalf("expected \" (1)\" suffix, got %s", record.CurrentPath)
	}
}

func TestRollbackBatchRestoresOriginals(t *testing.T) {
	f := newFixture(t, false)
	content := []byte("bytes-to-restore")
	track := f.writeTrackFile(t, "07 - sun.wav", content)
	originalPath := track.SourcePath

	if _, err := f.org.Apply(context.Background(), track, nil); err != nil {
		t.Fatal(err)
	}

	report, err := f.org.RollbackBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Reversed != 1 || report.Broken != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	restored, err := os.ReadFile(originalPath)
	if err != nil {
		t.Fatalf("original not restored: %v", err)
	}
	if !bytes.Equal(restored, content) {
		t.Fatal("restored bytes differ from pre-batch state")
	}
	if _, err := os.Stat(track.DestPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("destination should be gone after rollback")
	}

	records, err := f.db.MovesForBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Reversal != store.ReversalReversed {
		t.Fatalf("record not marked reversed: %+v", records[0])
	}
}

func TestRollbackBrokenChainIsReportedAndContinues(t *testing.T) {
	f := newFixture(t, false)
	trackA := f.writeTrackFile(t, "a.wav", []byte("aaaa"))
	trackB := f.writeTrackFile(t, "b.wav", []byte("bbbb"))
	trackB.Title = "Other Song"

	recordA, err := f.org.Apply(context.Background(), trackA, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.org.Apply(context.Background(), trackB, nil); err != nil {
		t.Fatal(err)
	}

	// Break A's chain: remove both the organized file and its backup.
	if err := os.Remove(recordA.CurrentPath); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(recordA.BackupPath); err != nil {
		t.Fatal(err)
	}

	report, err := f.org.RollbackBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Broken != 1 || report.Reversed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	broken, err := f.db.GetMove(context.Background(), recordA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if broken.Reversal != store.ReversalBroken {
		t.Fatalf("record not marked broken: %+v", broken)
	}
}

func TestCleanupNeverLeavesLibraryRoot(t *testing.T) {
	f := newFixture(t, false)

	foreign := filepath.Join(t.TempDir(), "foreign", "empty")
	if err := os.MkdirAll(foreign, 0o755); err != nil {
		t.Fatal(err)
	}
	f.org.CleanupEmptyDirs(foreign)
	if _, err := os.Stat(foreign); err != nil {
		t.Fatal("cleanup deleted a directory outside the library root")
	}

	inside := filepath.Join(f.library, "Artist", "Album")
	if err := os.MkdirAll(inside, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inside, "Thumbs.db"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.org.CleanupEmptyDirs(inside)
	if _, err := os.Stat(inside); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("junk-only directory should have been removed")
	}
	if _, err := os.Stat(f.library); err != nil {
		t.Fatal("library root itself must never be removed")
	}
}

func TestCleanupKeepsUserCoverArt(t *testing.T) {
	f := newFixture(t, false)
	dir := filepath.Join(f.library, "Artist", "Album")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "folder.jpg"), []byte("art"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.org.CleanupEmptyDirs(dir)
	if _, err := os.Stat(filepath.Join(dir, "folder.jpg")); err != nil {
		t.Fatal("user cover art must not be treated as junk")
	}
}

func TestBuildDestinationCompilationNaming(t *testing.T) {
	f := newFixture(t, false)
	track := &store.Track{
		SourcePath:    filepath.Join(f.source, "x.mp3"),
		Title:         "Freestyle",
		Artist:        "Lil' Keke",
		Album:         "Chapter 012 - June 27th",
		AlbumArtist:   "DJ Screw",
		TrackNumber:   2,
		IsCompilation: true,
	}
	dest := f.org.BuildDestination(track)
	if !strings.Contains(dest, filepath.Join("DJ Screw", "Chapter 012 - June 27th")) {
		t.Fatalf("compilation should folder under album artist: %s", dest)
	}
	if !strings.HasSuffix(dest, "02 - Freestyle - Lil' Keke.mp3") {
		t.Fatalf("compilation filename should carry the track artist: %s", dest)
	}
}

func TestBuildDestinationSinglesFolder(t *testing.T) {
	f := newFixture(t, false)
	track := &store.Track{
		SourcePath: filepath.Join(f.source, "x.mp3"),
		Title:      "Lonely Single",
		Artist:     "Somebody",
	}
	dest := f.org.BuildDestination(track)
	if !strings.Contains(dest, filepath.Join("Somebody", "Singles")) {
		t.Fatalf("album-less track should land in singles: %s", dest)
	}
}

func TestMalformedTemplateFallsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	opts := organizer.OptionsFromConfig(cfg, false)
	opts.FolderTemplate = "{artiist}/{album}"
	org := organizer.New(opts, db, logging.NewNop())

	track := &store.Track{
		SourcePath:  "/incoming/x.mp3",
		Title:       "Song",
		Artist:      "Artist",
		Album:       "Album",
		Year:        2001,
		TrackNumber: 1,
	}
	dest := org.BuildDestination(track)
	if strings.Contains(dest, "{") {
		t.Fatalf("placeholder leaked into destination: %s", dest)
	}
	if !strings.Contains(dest, filepath.Join("Artist", "Album (2001)")) {
		t.Fatalf("default template not applied: %s", dest)
	}
}

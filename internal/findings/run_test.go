package findings

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	auditerrors "srcaudit/internal/errors"
	"srcaudit/internal/identity"
	"srcaudit/internal/logging"
	"srcaudit/internal/storage"
)

func setupTestStore(t *testing.T) (*storage.DB, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.Create(filepath.Join(dir, storage.StoreFileName),
		storage.Options{}, logging.Nop())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	return db, dir
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func countRows(t *testing.T, db *storage.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

// currentRowID returns the files row that a report reader would select for
// path, or 0 if none exists.
func currentRowID(t *testing.T, db *storage.DB, path string) int64 {
	t.Helper()
	fi := identity.Identify(path)
	if !fi.Valid() {
		t.Fatalf("could not identify %s", path)
	}
	var id int64
	err := db.QueryRow(
		`SELECT id FROM files WHERE path = ? AND mtime = ? AND size = ? ORDER BY id DESC LIMIT 1`,
		fi.Path, fi.Mtime, fi.Size,
	).Scan(&id)
	if err != nil {
		return 0
	}
	return id
}

func TestCommitRoundTrip(t *testing.T) {
	db, dir := setupTestStore(t)
	path := writeSource(t, dir, "main.cpp", "int main() { return 0; }\n")

	run := NewRun(db, logging.Nop())
	if err := run.Record(path, 1, 14, "sprintf", "sprintf"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run.Record(path, 1, 20, "alloca", "x"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if got := countRows(t, db, `SELECT COUNT(*) FROM files`); got != 1 {
		t.Errorf("expected 1 files row, got %d", got)
	}
	id := currentRowID(t, db, path)
	if id == 0 {
		t.Fatal("expected a current files row")
	}
	if got := countRows(t, db, `SELECT COUNT(*) FROM reports WHERE file = ?`, id); got != 2 {
		t.Errorf("expected 2 findings, got %d", got)
	}

	var line, column int
	var tool, message string
	err := db.QueryRow(
		`SELECT line, column, tool, message FROM reports WHERE file = ? ORDER BY rowid LIMIT 1`,
		id,
	).Scan(&line, &column, &tool, &message)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if line != 1 || column != 14 || tool != "sprintf" || message != "sprintf" {
		t.Errorf("unexpected finding %d:%d (%s) %s", line, column, tool, message)
	}
}

func TestAliasSpellingsShareOneRow(t *testing.T) {
	db, dir := setupTestStore(t)
	path := writeSource(t, dir, "util.cpp", "void f();\n")

	// Same file under two spellings: the plain path and one with a
	// redundant path element that only canonicalization removes.
	alias := dir + "/../" + filepath.Base(dir) + "/util.cpp"

	run := NewRun(db, logging.Nop())
	if err := run.Record(path, 1, 1, "strcpy", "strcpy(buf)"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run.Record(alias, 2, 1, "strcpy", "strcat(buf)"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if got := countRows(t, db, `SELECT COUNT(*) FROM files`); got != 1 {
		t.Errorf("expected both spellings to share one files row, got %d", got)
	}
	id := currentRowID(t, db, path)
	if got := countRows(t, db, `SELECT COUNT(*) FROM reports WHERE file = ?`, id); got != 2 {
		t.Errorf("expected 2 findings on the shared row, got %d", got)
	}
}

func TestSymlinkSpellingsShareOneRow(t *testing.T) {
	db, dir := setupTestStore(t)
	path := writeSource(t, dir, "real.cpp", "void f();\n")

	link := filepath.Join(dir, "alias.cpp")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	run := NewRun(db, logging.Nop())
	if err := run.Record(path, 1, 1, "alloca", "x"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run.Record(link, 1, 2, "alloca", "y"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if got := countRows(t, db, `SELECT COUNT(*) FROM files`); got != 1 {
		t.Errorf("expected one files row for the symlinked pair, got %d", got)
	}
}

func TestCommitShadowsTouchedFile(t *testing.T) {
	db, dir := setupTestStore(t)
	path := writeSource(t, dir, "fixed.cpp", "int main() {}\n")

	run1 := NewRun(db, logging.Nop())
	if err := run1.Record(path, 1, 1, "sprintf", "sprintf"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run1.Commit(); err != nil {
		t.Fatalf("first Commit failed: %v", err)
	}

	// Re-analysis finds nothing, but must still supersede the old result
	// even though the file content is unchanged.
	run2 := NewRun(db, logging.Nop())
	run2.MarkTouched(path)
	if err := run2.Commit(); err != nil {
		t.Fatalf("second Commit failed: %v", err)
	}

	if got := countRows(t, db, `SELECT COUNT(*) FROM files`); got != 2 {
		t.Fatalf("expected a fresh files row per run, got %d", got)
	}
	id := currentRowID(t, db, path)
	if id == 0 {
		t.Fatal("expected a current files row")
	}
	if got := countRows(t, db, `SELECT COUNT(*) FROM reports WHERE file = ?`, id); got != 0 {
		t.Errorf("expected the current row to carry no findings, got %d", got)
	}
}

func TestTouchedUnknownFileInsertsNothing(t *testing.T) {
	db, dir := setupTestStore(t)
	path := writeSource(t, dir, "quiet.cpp", "int main() {}\n")

	run := NewRun(db, logging.Nop())
	run.MarkTouched(path)
	if err := run.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// The file was never in the database, so there is nothing to shadow.
	if got := countRows(t, db, `SELECT COUNT(*) FROM files`); got != 0 {
		t.Errorf("expected no rows for a first-seen clean file, got %d", got)
	}
}

func TestRecordMissingFile(t *testing.T) {
	db, dir := setupTestStore(t)

	run := NewRun(db, logging.Nop())
	err := run.Record(filepath.Join(dir, "gone.cpp"), 1, 1, "alloca", "x")
	if err == nil {
		t.Fatal("expected error for a missing file")
	}
	if !auditerrors.HasCode(err, auditerrors.FileNotFound) {
		t.Errorf("expected FILE_NOT_FOUND, got %v", err)
	}
	if run.ErrorMessage() == "" {
		t.Error("expected a diagnostic message")
	}
}

func TestCommitTouchedMissingFileRollsBack(t *testing.T) {
	db, dir := setupTestStore(t)
	present := writeSource(t, dir, "present.cpp", "int x;\n")

	run := NewRun(db, logging.Nop())
	if err := run.Record(present, 1, 1, "alloca", "x"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	run.MarkTouched(filepath.Join(dir, "vanished.cpp"))

	err := run.Commit()
	if err == nil {
		t.Fatal("expected commit to fail when a touched file is missing")
	}
	if !auditerrors.HasCode(err, auditerrors.FileNotFound) {
		t.Errorf("expected FILE_NOT_FOUND, got %v", err)
	}

	// The failed run must leave no trace.
	if got := countRows(t, db, `SELECT COUNT(*) FROM files`); got != 0 {
		t.Errorf("expected rollback to discard the run, got %d files rows", got)
	}
	if got := countRows(t, db, `SELECT COUNT(*) FROM reports`); got != 0 {
		t.Errorf("expected rollback to discard the run, got %d reports rows", got)
	}
}

func TestRunIsSingleShot(t *testing.T) {
	db, dir := setupTestStore(t)
	path := writeSource(t, dir, "once.cpp", "int x;\n")

	run := NewRun(db, logging.Nop())
	if err := run.Record(path, 1, 1, "alloca", "x"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := run.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := run.Commit(); err == nil {
		t.Error("expected second Commit to fail")
	}
	if err := run.Record(path, 2, 1, "alloca", "y"); err == nil {
		t.Error("expected Record after Commit to fail")
	}
}

func TestRunIDsAreUnique(t *testing.T) {
	db, _ := setupTestStore(t)
	a := NewRun(db, logging.Nop())
	b := NewRun(db, logging.Nop())
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("expected distinct nonempty run ids, got %q and %q", a.ID(), b.ID())
	}
}

func TestConcurrentCommitsConverge(t *testing.T) {
	db, dir := setupTestStore(t)
	path := writeSource(t, dir, "hot.cpp", "int main() {}\n")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each worker simulates a separate scan process with its
			// own database handle.
			wdb, err := storage.Open(db.Path(), storage.Options{BackoffBaseMs: 5},
				logging.Nop())
			if err != nil {
				errs[i] = err
				return
			}
			defer wdb.Close() //nolint:errcheck // Test cleanup

			run := NewRun(wdb, logging.Nop())
			run.MarkTouched(path)
			if err := run.Record(path, uint32(i+1), 1, "alloca", run.ID()); err != nil {
				errs[i] = err
				return
			}
			errs[i] = run.Commit()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d failed: %v", i, err)
		}
	}

	// Every run inserted exactly one fresh files row, and the findings of
	// the highest row all belong to a single run.
	if got := countRows(t, db, `SELECT COUNT(*) FROM files`); got != workers {
		t.Errorf("expected %d files rows, got %d", workers, got)
	}
	id := currentRowID(t, db, path)
	if id == 0 {
		t.Fatal("expected a current files row")
	}
	if got := countRows(t, db, `SELECT COUNT(*) FROM reports WHERE file = ?`, id); got != 1 {
		t.Errorf("expected exactly one finding on the winning row, got %d", got)
	}
	if got := countRows(t, db,
		`SELECT COUNT(DISTINCT message) FROM reports WHERE file = ?`, id); got != 1 {
		t.Errorf("winning row mixes findings from %d runs", got)
	}
}

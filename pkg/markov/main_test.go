package markov

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// openTestDB opens a fresh SQLite file with the markov schema.
func openTestDB(tb testing.TB) *sql.DB {
	tb.Helper()
	dbFile := filepath.Join(tb.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		tb.Fatalf("failed to set up schema: %v", err)
	}
	return db
}

// setupTestStore creates a database and a Store using the word tokenizer.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(tb testing.TB, tokenizer Tokenizer) (*sql.DB, *Store) {
	tb.Helper()
	db := openTestDB(tb)
	if tokenizer == nil {
		tokenizer = NewWordTokenizer()
	}
	s, err := NewStore(db, tokenizer)
	if err != nil {
		tb.Fatalf("NewStore() error = %v", err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	return db, s
}

// trainModel creates a model on s and trains it with data.
func trainModel(tb testing.TB, s *Store, name string, order int, data string) ModelInfo {
	tb.Helper()
	ctx := context.Background()
	model, _, err := s.EnsureModel(ctx, name, order)
	if err != nil {
		tb.Fatalf("setup: EnsureModel() failed: %v", err)
	}
	if err := s.Train(ctx, model, strings.NewReader(data)); err != nil {
		tb.Fatalf("setup: Train() failed: %v", err)
	}
	return model
}

// setupTestDBWithTraining is a convenience helper that also trains a default model.
func setupTestDBWithTraining(t *testing.T) (context.Context, *Store, ModelInfo) {
	_, s := setupTestStore(t, nil)
	model := trainModel(t, s, "test_model", 2, "one fish two fish. red fish blue fish.")
	return context.Background(), s, model
}

// fixedRand replays values; IntN and Float64 scale them into range.
type fixedRand struct {
	vals []int
	i    int
}

func (r *fixedRand) next() int {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func (r *fixedRand) IntN(n int) int { return r.next() % n }

func (r *fixedRand) Float64() float64 { return float64(r.next()%1000) / 1000 }

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}

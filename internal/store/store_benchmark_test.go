package store

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/hikemate/trailpack/internal/tile"
	"github.com/hikemate/trailpack/pkg/logger"
)

const (
	smallTileSize = 1024      // 1KB
	largeTileSize = 50 * 1024 // 50KB
)

func generateTileData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func benchKey(i int) tile.Key {
	return tile.Key{Z: i % 20, X: i % 1000, Y: i % 1000, Source: "osm"}
}

func setupBenchSQLite(b *testing.B) *SQLiteStore {
	b.Helper()
	s, err := NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"), logger.NewNop())
	if err != nil {
		b.Fatalf("failed to create sqlite store: %v", err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

func benchmarkSet(b *testing.B, s Store, size int) {
	ctx := context.Background()
	data := generateTileData(size)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.SetTile(ctx, benchKey(i), data); err != nil {
			b.Fatalf("set failed: %v", err)
		}
	}
}

func benchmarkGet(b *testing.B, s Store, size int) {
	ctx := context.Background()
	data := generateTileData(size)

	for i := 0; i < 100; i++ {
		s.SetTile(ctx, benchKey(i), data)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.GetTile(ctx, benchKey(i%100)); err != nil {
			b.Fatalf("get failed: %v", err)
		}
	}
}

func BenchmarkSet_SQLite_Small(b *testing.B) { benchmarkSet(b, setupBenchSQLite(b), smallTileSize) }
func BenchmarkSet_SQLite_Large(b *testing.B) { benchmarkSet(b, setupBenchSQLite(b), largeTileSize) }
func BenchmarkSet_Memory_Small(b *testing.B) { benchmarkSet(b, NewMemoryStore(), smallTileSize) }
func BenchmarkSet_Memory_Large(b *testing.B) { benchmarkSet(b, NewMemoryStore(), largeTileSize) }

func BenchmarkGet_SQLite_Small(b *testing.B) { benchmarkGet(b, setupBenchSQLite(b), smallTileSize) }
func BenchmarkGet_SQLite_Large(b *testing.B) { benchmarkGet(b, setupBenchSQLite(b), largeTileSize) }
func BenchmarkGet_Memory_Small(b *testing.B) { benchmarkGet(b, NewMemoryStore(), smallTileSize) }
func BenchmarkGet_Memory_Large(b *testing.B) { benchmarkGet(b, NewMemoryStore(), largeTileSize) }

// Mixed workload: 80% reads, 20% writes, the typical cache pattern.
func benchmarkMixed(b *testing.B, s Store) {
	ctx := context.Background()
	data := generateTileData(10 * 1024)

	for i := 0; i < 50; i++ {
		s.SetTile(ctx, benchKey(i), data)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%5 == 0 {
			s.SetTile(ctx, benchKey(i%100), data)
		} else {
			s.GetTile(ctx, benchKey(i%100))
		}
	}
}

func BenchmarkMixed_SQLite(b *testing.B) { benchmarkMixed(b, setupBenchSQLite(b)) }
func BenchmarkMixed_Memory(b *testing.B) { benchmarkMixed(b, NewMemoryStore()) }

func BenchmarkConcurrent_Memory(b *testing.B) {
	s := NewMemoryStore()
	ctx := context.Background()
	data := generateTileData(10 * 1024)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%5 == 0 {
				s.SetTile(ctx, benchKey(i%100), data)
			} else {
				s.GetTile(ctx, benchKey(i%100))
			}
			i++
		}
	})
}

package bench

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/MikhailWahib/minicask"
	"github.com/hashicorp/go-hclog"
)

const (
	numKeys   = 10000
	valueSize = 100
)

func benchConfig(maxFileSize int64) *minicask.Config {
	cfg := minicask.DefaultConfig()
	cfg.MaxFileSize = maxFileSize
	cfg.Logger = hclog.NewNullLogger()
	return cfg
}

var (
	writeCfg  = benchConfig(64 * 1024 * 1024)
	rotateCfg = benchConfig(64 * 1024)
)

func setupBenchDB(b *testing.B, cfg *minicask.Config) (*minicask.DB, string) {
	dir := b.TempDir()
	db, err := minicask.Open(dir, cfg)
	if err != nil {
		b.Fatalf("Failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })
	return db, dir
}

func generateKey(i int) []byte {
	return fmt.Appendf(nil, "key_%010d", i)
}

// generateValue returns printable ASCII so every value is valid UTF-8.
func generateValue(size int) []byte {
	value := make([]byte, size)
	for i := range value {
		value[i] = byte('a' + rand.Intn(26))
	}
	return value
}

func populate(b *testing.B, db *minicask.DB) {
	value := generateValue(valueSize)
	for i := range numKeys {
		if err := db.Set(generateKey(i), value); err != nil {
			b.Fatalf("Pre-populate set failed: %v", err)
		}
	}
}

func BenchmarkWrite(b *testing.B) {
	db, _ := setupBenchDB(b, writeCfg)
	value := generateValue(valueSize)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := db.Set(generateKey(i), value); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
}

func BenchmarkWriteWithRotation(b *testing.B) {
	db, _ := setupBenchDB(b, rotateCfg)
	value := generateValue(valueSize)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := db.Set(generateKey(i), value); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
}

func BenchmarkSetWithExpire(b *testing.B) {
	db, _ := setupBenchDB(b, writeCfg)
	value := generateValue(valueSize)
	deadline := time.Now().Add(time.Hour)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := db.SetWithExpire(generateKey(i), value, deadline); err != nil {
			b.Fatalf("SetWithExpire failed: %v", err)
		}
	}
}

func BenchmarkRead(b *testing.B) {
	db, _ := setupBenchDB(b, writeCfg)
	populate(b, db)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, found := db.Get(generateKey(i % numKeys)); !found {
			b.Fatalf("key not found")
		}
	}
}

func BenchmarkRandomRead(b *testing.B) {
	db, _ := setupBenchDB(b, writeCfg)
	populate(b, db)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, found := db.Get(generateKey(rand.Intn(numKeys))); !found {
			b.Fatalf("key not found")
		}
	}
}

func BenchmarkConcurrentRead(b *testing.B) {
	db, _ := setupBenchDB(b, writeCfg)
	populate(b, db)

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, found := db.Get(generateKey(rand.Intn(numKeys))); !found {
				b.Error("key not found")
				return
			}
		}
	})
}

func BenchmarkConcurrentWrite(b *testing.B) {
	db, _ := setupBenchDB(b, writeCfg)
	value := generateValue(valueSize)

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			// Use unique keys to avoid collisions across goroutines
			key := fmt.Appendf(nil, "key_%d_%d", rand.Int63(), i)
			if err := db.Set(key, value); err != nil {
				b.Errorf("Set failed: %v", err)
				return
			}
			i++
		}
	})
}

func BenchmarkReplay(b *testing.B) {
	db, dir := setupBenchDB(b, rotateCfg)
	populate(b, db)
	if err := db.Close(); err != nil {
		b.Fatalf("Close failed: %v", err)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		db, err := minicask.Open(dir, rotateCfg)
		if err != nil {
			b.Fatalf("Open failed: %v", err)
		}
		if err := db.Close(); err != nil {
			b.Fatalf("Close failed: %v", err)
		}
	}
}

package benchmarks

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/comalice/anchorflow/internal/production"
)

func BenchmarkEncodePositions(b *testing.B) {
	for _, n := range []int{10, 1000} {
		b.Run(fmt.Sprintf("objects=%d", n), func(b *testing.B) {
			positions := GenPositions(n)
			var buf bytes.Buffer
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				if err := production.EncodePositions(&buf, positions); err != nil {
					b.Fatal(err)
				}
			}
			b.SetBytes(int64(buf.Len()))
		})
	}
}

func BenchmarkDecodePositions(b *testing.B) {
	for _, n := range []int{10, 1000} {
		b.Run(fmt.Sprintf("objects=%d", n), func(b *testing.B) {
			var buf bytes.Buffer
			if err := production.EncodePositions(&buf, GenPositions(n)); err != nil {
				b.Fatal(err)
			}
			data := buf.Bytes()
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				got, err := production.DecodePositions(bytes.NewReader(data))
				if err != nil {
					b.Fatal(err)
				}
				if len(got) != n {
					b.Fatalf("decoded %d positions, want %d", len(got), n)
				}
			}
		})
	}
}

func BenchmarkParseLegacyPosition(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := production.ParsePosition("(1,5, 2,0, -3,25)"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFileStoreSaveLoad(b *testing.B) {
	ctx := context.Background()
	store := production.NewFileStore(b.TempDir(), "")
	positions := GenPositions(100)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.Save(ctx, positions); err != nil {
			b.Fatal(err)
		}
		if _, err := store.Load(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSnapshotDecode(b *testing.B) {
	data := GenSnapshotYAML(100)
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var snap production.Snapshot
		if err := yaml.Unmarshal(data, &snap); err != nil {
			b.Fatal(err)
		}
	}
}

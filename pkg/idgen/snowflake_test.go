package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	gen := &Snowflake{workerID: 1}

	const n = 10000
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		id := gen.Generate()
		if seen[id] {
			t.Fatalf("duplicate id: %d", id)
		}
		seen[id] = true
	}
}

func TestGenerateConcurrentUnique(t *testing.T) {
	gen := &Snowflake{workerID: 1}

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, gen.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if seen[id] {
					t.Errorf("duplicate id: %d", id)
					return
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()
}

func TestBusinessNoPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"deposit no", GenerateDepositNo, "DEP"},
		{"settlement no", GenerateSettlementNo, "WDR"},
		{"transaction no", GenerateTransactionNo, "TXN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			no := tt.gen()
			if !strings.HasPrefix(no, tt.prefix) {
				t.Fatalf("%s = %s, want prefix %s", tt.name, no, tt.prefix)
			}
			// 前缀 + 14位时间戳 + 8位序列
			if len(no) != len(tt.prefix)+14+8 {
				t.Fatalf("%s length = %d, want %d", tt.name, len(no), len(tt.prefix)+14+8)
			}
		})
	}
}

package budget

import (
	"fmt"
	"strings"
	"testing"
)

func BenchmarkEstimateTokens(b *testing.B) {
	for _, n := range []int{256, 4096, 65536} {
		s := strings.Repeat("x", n)
		b.Run(fmt.Sprintf("chars=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = EstimateTokens(s)
			}
		})
	}
}

func BenchmarkTruncateToFit(b *testing.B) {
	content := strings.Repeat("Widgets are small. They fit in pockets.\n\n", 5000)
	for _, model := range []string{"gpt-oss-20b", "gpt-4o"} {
		b.Run(model, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = TruncateToFit(content, model, 2000, 800)
			}
		})
	}
}

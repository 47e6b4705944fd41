package retrieval

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"replydesk/internal/embedding"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// bagOfWords embeds text by hashing lowercase words into a fixed number of
// buckets. Identical texts get identical vectors.
type bagOfWords struct {
	mu    sync.Mutex
	dims  int
	name  string
	calls []embedding.TaskType
	texts [][]string
	err   error
}

func newBagOfWords() *bagOfWords {
	return &bagOfWords{dims: 4096, name: "fake:bow"}
}

func (b *bagOfWords) Embed(_ context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, task)
	b.texts = append(b.texts, texts)
	if b.err != nil {
		return nil, b.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, b.dims)
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		}) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%uint32(b.dims)]++
		}
		out[i] = v
	}
	return out, nil
}

func (b *bagOfWords) Dimensions() int { return b.dims }
func (b *bagOfWords) Name() string    { return b.name }

func (b *bagOfWords) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

const policyCorpus = `# Refunds
Refunds are issued within 30 days of purchase to the original payment method.

# Baggage
Each passenger may check one bag up to 23 kg free of charge.

# Cancellations
Flights cancelled by the airline are eligible for a full refund or rebooking.

# Pets
Small pets travel in the cabin in an approved carrier.`

package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetConcurrentAdds(t *testing.T) {
	t.Parallel()

	b := &Budget{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				b.Add(10)
			} else {
				b.Add(-4)
			}
		}(i)
	}
	wg.Wait()

	assert.InDelta(t, 300.0, b.Realized(), 1e-9)

	b.Reset()
	assert.Zero(t, b.Realized())
	assert.InDelta(t, -1.5, b.Add(-1.5), 1e-9)
}

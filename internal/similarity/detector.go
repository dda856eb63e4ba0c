package similarity

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Detector selects the first healthy backend in the dense-embedding →
// TF-IDF → Jaccard chain and logs the choice exactly once, then serves
// every subsequent Similarity call from that backend.
type Detector struct {
	chain  []Backend
	logger *logrus.Logger

	once     sync.Once
	selected Backend
}

// NewDetector builds a detector over the default fallback chain. A
// probe is run once (lazily, on first use) to confirm the head of the
// chain is usable; unhealthy backends are skipped via their own
// Similarity call returning an error on a canary pair.
func NewDetector(logger *logrus.Logger, chain ...Backend) *Detector {
	if logger == nil {
		logger = logrus.New()
	}
	if len(chain) == 0 {
		chain = []Backend{Embedding{}, TFIDF{}, Jaccard{}}
	}
	return &Detector{chain: chain, logger: logger}
}

// Similarity runs the selected backend, falling back further down the
// chain only during the one-time selection probe — once a backend is
// selected it is used for the lifetime of the detector (invariant 12:
// the detector is always constructible and always returns a score in
// [0,1], even with the top backend's dependency absent).
func (d *Detector) Similarity(ctx context.Context, a, b string) (float64, error) {
	d.once.Do(func() { d.selectBackend(ctx) })
	return d.selected.Similarity(ctx, a, b)
}

// Backend reports the backend chosen by the selection probe, running
// the probe if it has not yet run.
func (d *Detector) Backend(ctx context.Context) Backend {
	d.once.Do(func() { d.selectBackend(ctx) })
	return d.selected
}

func (d *Detector) selectBackend(ctx context.Context) {
	for _, backend := range d.chain {
		if _, err := backend.Similarity(ctx, "canary probe text", "canary probe text"); err == nil {
			d.selected = backend
			d.logger.WithField("backend", backend.Name()).Info("similarity backend selected")
			return
		}
		d.logger.WithField("backend", backend.Name()).Warn("similarity backend unavailable, falling back")
	}
	// Jaccard never errors, so the loop above always finds a backend
	// before reaching here; this is an unreachable safety net.
	d.selected = Jaccard{}
}

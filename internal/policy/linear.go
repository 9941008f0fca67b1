// File: internal/policy/linear.go
package policy

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
)

// numFeatures is the width of the feature vector built by features.
const numFeatures = 1 + (schemas.NumConveyors + 1) + schemas.NumItemTypes + schemas.NumItemTypes + schemas.NumConveyors

// Experience is one (state, action, reward, next state) transition.
type Experience struct {
	Prev   Observation
	Action int
	Reward float64
	Next   Observation
}

// Linear is a linear Q-value learner over hand-built features.
//
// Select adds a count-based exploration bonus to each Q estimate, so it stays
// deterministic between training steps. Update only enqueues; a background
// goroutine trains in batches.
type Linear struct {
	name string
	cfg  config.PolicyConfig
	log  *zap.Logger

	mu      sync.RWMutex
	weights [schemas.NumTactics][numFeatures]float64
	visits  [schemas.NumTactics]int
	steps   int64

	experiences chan Experience
	dropped     atomic.Int64
	closed      atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewLinear creates a learner and starts its training goroutine.
// Close must be called to stop it.
func NewLinear(name string, cfg config.PolicyConfig, logger *zap.Logger) *Linear {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Linear{
		name:        name,
		cfg:         cfg,
		log:         logger.Named("policy").With(zap.String("model", name)),
		experiences: make(chan Experience, cfg.BufferSize),
		cancel:      cancel,
	}
	l.startTrainer(ctx)
	return l
}

// Name identifies the model, and its snapshot file.
func (l *Linear) Name() string { return l.name }

func (l *Linear) Select(obs Observation, mask []bool) int {
	phi := features(obs)

	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0
	for _, v := range l.visits {
		total += v
	}
	best, bestScore := -1, math.Inf(-1)
	for a, ok := range mask {
		if !ok || a >= schemas.NumTactics {
			continue
		}
		score := dot(l.weights[a][:], phi) +
			l.cfg.ExplorationBonus*math.Sqrt(math.Log(float64(total)+1)/float64(l.visits[a]+1))
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	if best < 0 {
		return FirstAvailable(mask)
	}
	return best
}

// Update enqueues an experience for training. When the buffer is full it
// waits at most the configured update budget and then drops the experience.
func (l *Linear) Update(prev Observation, action int, rewardDelta float64, next Observation) {
	if l.closed.Load() || action < 0 || action >= schemas.NumTactics {
		return
	}
	e := Experience{Prev: prev, Action: action, Reward: rewardDelta, Next: next}
	select {
	case l.experiences <- e:
		return
	default:
	}

	timer := time.NewTimer(l.cfg.UpdateBudget)
	defer timer.Stop()
	select {
	case l.experiences <- e:
	case <-timer.C:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.log.Warn("Experience buffer full; dropping updates.", zap.Int64("dropped", n))
		}
	}
}

// Dropped returns how many experiences were discarded for lack of buffer space.
func (l *Linear) Dropped() int64 { return l.dropped.Load() }

// Steps returns how many experiences have been trained on.
func (l *Linear) Steps() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.steps
}

// Close stops the trainer after it has trained on everything already queued.
func (l *Linear) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.cancel()
		l.wg.Wait()
	})
	return nil
}

// startTrainer runs the batching loop: it trains when a batch fills up or the
// flush interval elapses, and drains the buffer on shutdown.
func (l *Linear) startTrainer(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		batch := make([]Experience, 0, l.cfg.BatchSize)
		ticker := time.NewTicker(l.cfg.FlushInterval)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			l.train(batch)
			batch = batch[:0]
		}

		for {
			select {
			case e := <-l.experiences:
				batch = append(batch, e)
				if len(batch) >= l.cfg.BatchSize {
					flush()
					ticker.Reset(l.cfg.FlushInterval)
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				drainExperiences(l.experiences, &batch)
				flush()
				return
			}
		}
	}()
}

// drainExperiences moves whatever is still buffered into batch without blocking.
func drainExperiences(ch <-chan Experience, batch *[]Experience) {
	for {
		select {
		case e := <-ch:
			*batch = append(*batch, e)
		default:
			return
		}
	}
}

// train applies one semi-gradient Q-learning step per experience.
func (l *Linear) train(batch []Experience) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range batch {
		phi := features(e.Prev)
		next := features(e.Next)

		maxNext := math.Inf(-1)
		for a := range l.weights {
			if q := dot(l.weights[a][:], next); q > maxNext {
				maxNext = q
			}
		}
		target := e.Reward + l.cfg.Discount*maxNext
		td := target - dot(l.weights[e.Action][:], phi)
		// Clip so one outlier reward cannot blow the weights up.
		td = math.Max(-100, math.Min(100, td))
		for i := range phi {
			l.weights[e.Action][i] += l.cfg.LearningRate * td * phi[i]
		}
		l.visits[e.Action]++
		l.steps++
	}
	l.log.Debug("Trained on experience batch.", zap.Int("size", len(batch)), zap.Int64("steps", l.steps))
}

// features maps an observation onto a small normalized vector.
func features(o Observation) []float64 {
	const capScale, orderScale = 5.0, 10.0
	phi := make([]float64, 0, numFeatures)
	phi = append(phi, 1)
	for _, q := range o.Conveyors {
		phi = append(phi, float64(len(q))/capScale)
	}
	phi = append(phi, float64(len(o.Shipment))/capScale)
	for _, n := range o.Orders {
		phi = append(phi, float64(n)/orderScale)
	}
	for _, t := range schemas.ItemTypes {
		if o.RecentItem == t {
			phi = append(phi, 1)
		} else {
			phi = append(phi, 0)
		}
	}
	for c := 0; c < schemas.NumConveyors; c++ {
		phi = append(phi, float64((o.AnomalyMask>>c)&1))
	}
	return phi
}

func dot(w []float64, phi []float64) float64 {
	s := 0.0
	for i := range phi {
		s += w[i] * phi[i]
	}
	return s
}

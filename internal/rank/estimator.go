package rank

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/pavelanni/neetrank/internal/model"
)

// PlaceholderRank is returned while no model has been trained.
const PlaceholderRank = 5000

// DefaultColleges is the placeholder suggestion list.
var DefaultColleges = []string{
	"All India Institute of Medical Sciences",
	"Christian Medical College",
	"Armed Forces Medical College",
}

// State tags whether an Estimator has a fitted model.
type State int

const (
	Untrained State = iota
	Trained
)

func (s State) String() string {
	if s == Trained {
		return "trained"
	}
	return "untrained"
}

// Sample pairs a performance with the rank the student actually obtained.
type Sample struct {
	Performance  *model.StudentPerformance
	ObservedRank int
}

// ErrTooFewSamples is returned by Train when the system is underdetermined.
var ErrTooFewSamples = errors.New("not enough training samples")

// Model is a fitted linear regression: Intercept + Coefficients·features.
type Model struct {
	Intercept    float64   `json:"intercept"`
	Coefficients Vector    `json:"coefficients"`
	Samples      int       `json:"samples"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Predict applies the model to a feature vector.
func (m Model) Predict(v Vector) float64 {
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * v[i]
	}
	return y
}

// Estimator maps performances to ranks. PredictRank may be called from many
// goroutines; Train calls must not overlap each other.
type Estimator struct {
	mu       sync.RWMutex
	state    State
	model    Model
	colleges []string
}

// NewEstimator creates an untrained estimator suggesting the given colleges
// (DefaultColleges when empty).
func NewEstimator(colleges []string) *Estimator {
	if len(colleges) == 0 {
		colleges = DefaultColleges
	}
	return &Estimator{colleges: slices.Clone(colleges)}
}

// State reports whether a model is loaded.
func (e *Estimator) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Model returns the fitted model and whether one exists.
func (e *Estimator) Model() (Model, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model, e.state == Trained
}

// Train fits an ordinary least squares regression on the samples' feature
// vectors. On error the estimator keeps its previous state.
func (e *Estimator) Train(samples []Sample) (Model, error) {
	params := NumFeatures + 1
	if len(samples) < params {
		return Model{}, fmt.Errorf("%w: have %d, need at least %d", ErrTooFewSamples, len(samples), params)
	}

	x := mat.NewDense(len(samples), params, nil)
	y := mat.NewVecDense(len(samples), nil)
	for i, s := range samples {
		if s.Performance == nil {
			return Model{}, fmt.Errorf("sample %d has no performance", i)
		}
		f := Features(s.Performance)
		x.Set(i, 0, 1)
		for j, v := range f {
			x.Set(i, j+1, v)
		}
		y.SetVec(i, float64(s.ObservedRank))
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return Model{}, fmt.Errorf("fit regression: %w", err)
	}

	m := Model{Intercept: beta.AtVec(0), Samples: len(samples), TrainedAt: time.Now()}
	for j := range NumFeatures {
		m.Coefficients[j] = beta.AtVec(j + 1)
	}

	e.mu.Lock()
	e.model = m
	e.state = Trained
	e.mu.Unlock()

	slog.Info("rank model trained", "samples", len(samples), "intercept", m.Intercept)
	return m, nil
}

// Restore loads a previously fitted model, e.g. one read back from storage.
func (e *Estimator) Restore(m Model) {
	e.mu.Lock()
	e.model = m
	e.state = Trained
	e.mu.Unlock()
}

// PredictRank returns the predicted rank for perf, or PlaceholderRank while
// untrained. Trained predictions are rounded and never below 1.
func (e *Estimator) PredictRank(perf *model.StudentPerformance) int {
	e.mu.RLock()
	state, m := e.state, e.model
	e.mu.RUnlock()

	if state != Trained {
		return PlaceholderRank
	}
	r := math.Round(m.Predict(Features(perf)))
	if math.IsNaN(r) || r < 1 {
		return 1
	}
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r)
}

// PredictColleges returns the suggested colleges for a rank. The list does
// not depend on the rank yet.
func (e *Estimator) PredictColleges(_ int) []string {
	return slices.Clone(e.colleges)
}

// Prediction builds the client-facing rank section for a user.
func (e *Estimator) Prediction(userID string, perf *model.StudentPerformance) model.RankPrediction {
	r := e.PredictRank(perf)
	colleges := e.PredictColleges(r)
	out := model.RankPrediction{
		UserID:          userID,
		PredictedRank:   r,
		RankRange:       fmt.Sprintf("%d to %d", max(1, r-500), r+500),
		ConfidenceScore: 0.85,
	}
	for i, c := range colleges {
		out.RecommendedColleges = append(out.RecommendedColleges, model.CollegePrediction{
			Name:        c,
			Probability: max(0, math.Round((0.9-0.1*float64(i))*100)/100),
			CutoffRange: fmt.Sprintf("≤ %d", r+i*1000),
		})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

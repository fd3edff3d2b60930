// Package fit holds the curve models used to analyse pulse calibration runs
// and a least-squares fitter for them.
package fit

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Model evaluates a curve at x for parameters p.
type Model struct {
	Name   string
	Params []string
	Eval   func(x float64, p []float64) float64
}

// Sinusoid is A*cos(2*pi*x/period - phi) + B.
func Sinusoid(x, a, b, period, phi float64) float64 {
	return a*math.Cos(2*math.Pi*x/period-phi) + b
}

// Lorentzian is a peak of half-width b centred on q, on top of offset c.
func Lorentzian(x, a, q, b, c float64) float64 {
	return (a/math.Pi)*(b/((x-q)*(x-q)+b*b)) + c
}

var (
	SinusoidModel = Model{
		Name:   "sinusoid",
		Params: []string{"A", "B", "drive_period", "phi"},
		Eval: func(x float64, p []float64) float64 {
			return Sinusoid(x, p[0], p[1], p[2], p[3])
		},
	}
	LorentzianModel = Model{
		Name:   "lorentzian",
		Params: []string{"A", "q_freq", "B", "C"},
		Eval: func(x float64, p []float64) float64 {
			return Lorentzian(x, p[0], p[1], p[2], p[3])
		},
	}
)

// ModelByName returns a model by its name.
func ModelByName(name string) (Model, error) {
	switch strings.ToLower(name) {
	case SinusoidModel.Name:
		return SinusoidModel, nil
	case LorentzianModel.Name:
		return LorentzianModel, nil
	}
	return Model{}, fmt.Errorf("unknown model %q (want sinusoid or lorentzian)", name)
}

// Curve fits m to the points (x, y) starting from init and returns the
// fitted parameters and the model evaluated at x.
func Curve(m Model, x, y, init []float64) ([]float64, []float64, error) {
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("x and y differ in length: %d != %d", len(x), len(y))
	}
	if len(x) == 0 {
		return nil, nil, errors.New("no data points")
	}
	if len(init) != len(m.Params) {
		return nil, nil, fmt.Errorf("%s takes %d parameters, got %d", m.Name, len(m.Params), len(init))
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var sum float64
			for i := range x {
				r := y[i] - m.Eval(x[i], p)
				sum += r * r
			}
			return sum
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 200 * 1000,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-14, Relative: 1e-14, Iterations: 500},
	}
	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, nil, fmt.Errorf("fit %s: %w", m.Name, err)
	}
	if floats.HasNaN(result.X) {
		return nil, nil, fmt.Errorf("fit %s: diverged", m.Name)
	}

	yFit := make([]float64, len(x))
	for i := range x {
		yFit[i] = m.Eval(x[i], result.X)
	}
	return result.X, yFit, nil
}

// Sideband modulates the real part of samples with a sine at sbFreq.
// Sample i sits at time i*dt*n/(n-1), spreading n points over [0, dt*n].
func Sideband(samples []complex128, sbFreq, dt float64) []float64 {
	n := len(samples)
	t := make([]float64, n)
	if n > 1 {
		floats.Span(t, 0, dt*float64(n))
	}
	out := make([]float64, n)
	for i, s := range samples {
		out[i] = real(s) * math.Sin(2*math.Pi*sbFreq*t[i])
	}
	return out
}

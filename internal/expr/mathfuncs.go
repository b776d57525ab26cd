package expr

import (
	"math"

	"aggsearch/internal/qerror"
	"aggsearch/internal/value"
)

func ceil(f float64) float64  { return math.Ceil(f) }
func floor(f float64) float64 { return math.Floor(f) }
func sqrt(f float64) float64  { return math.Sqrt(f) }
func log(f float64) float64   { return math.Log(f) }

func mathUnary(fn func(float64) float64) func([]value.Value) (value.Value, error) {
	return func(a []value.Value) (value.Value, error) {
		f, ok := a[0].Number()
		if !ok {
			return value.Null, qerror.New(qerror.BadType, "argument must be numeric")
		}
		return value.Number(fn(f)), nil
	}
}

package ast

import (
	"math"
	"strconv"
)

// FormatComplex renders a complex scalar in the DSL's own syntax, so the
// output of String can be parsed back by the expression parser. The
// imaginary unit is spelled with the predeclared identifier i.
func FormatComplex(c complex128) string {
	re, im := real(c), imag(c)
	if re == 0 {
		re = 0 // normalize -0
	}
	if im == 0 {
		return formatFloat(re)
	}
	if re == 0 {
		if im == 1 {
			return "i"
		}
		if im == -1 {
			return "(-i)"
		}
		return "(" + formatFloat(im) + " * i)"
	}
	if im < 0 {
		return "(" + formatFloat(re) + " - " + formatFloat(-im) + " * i)"
	}
	return "(" + formatFloat(re) + " + " + formatFloat(im) + " * i)"
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

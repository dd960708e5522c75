// Package foc implements the stateless field-oriented-control transforms used
// by the current loop. Everything is single precision; nothing allocates.
package foc

import "github.com/chewxy/math32"

const (
	// Sqrt3 and its inverse are used by the Clarke transforms
	Sqrt3    = float32(1.7320508075688772)
	InvSqrt3 = float32(0.5773502691896258)

	// TwoPi is one electrical or mechanical revolution in radians
	TwoPi = 2 * math32.Pi

	// OvermodulationFactor extends the usable voltage vector beyond the
	// sinusoidal limit. The current loop clamps |v|² to OvermodulationFactor·v_bus².
	OvermodulationFactor = float32(1.15)
)

// Clarke maps balanced three-phase currents onto the stationary alpha/beta frame.
// It assumes i_a + i_b + i_c ≈ 0.
func Clarke(ia, ib, ic float32) (alpha, beta float32) {
	alpha = ia
	beta = (ib - ic) * InvSqrt3
	return alpha, beta
}

// Park rotates the stationary frame into the rotor frame.
// The sign convention must agree with the encoder direction and motor phase
// order; InvPark is its exact inverse so the pair stays consistent.
func Park(alpha, beta, sinTheta, cosTheta float32) (q, d float32) {
	d = alpha*cosTheta + beta*sinTheta
	q = -alpha*sinTheta + beta*cosTheta
	return q, d
}

// InvPark rotates rotor-frame voltages back into the stationary frame.
func InvPark(q, d, sinTheta, cosTheta float32) (alpha, beta float32) {
	alpha = d*cosTheta - q*sinTheta
	beta = d*sinTheta + q*cosTheta
	return alpha, beta
}

// InvClarkeSVPWM converts alpha/beta voltages into three phase voltages with
// min/max common-mode injection (space-vector modulation). The result is
// centred on zero; Duty shifts it into the [0,1] PWM range.
func InvClarkeSVPWM(alpha, beta float32) (a, b, c float32) {
	a = alpha
	b = -0.5*alpha + 0.5*Sqrt3*beta
	c = -0.5*alpha - 0.5*Sqrt3*beta

	vmax := a
	if b > vmax {
		vmax = b
	}
	if c > vmax {
		vmax = c
	}
	vmin := a
	if b < vmin {
		vmin = b
	}
	if c < vmin {
		vmin = c
	}

	offset := 0.5 * (vmax + vmin)
	return a - offset, b - offset, c - offset
}

// Duty converts a centred phase voltage into a PWM duty cycle in [0,1].
// A non-positive bus voltage yields 0.5 (zero differential voltage) instead of
// dividing by zero.
func Duty(v, vbus float32) float32 {
	if !(vbus > 0) || math32.IsNaN(v) {
		return 0.5
	}
	return Clamp(0.5+v/vbus, 0, 1)
}

// Clamp limits v to [lo, hi]. NaN is treated as zero.
func Clamp(v, lo, hi float32) float32 {
	if math32.IsNaN(v) {
		v = 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WrapAngle maps an angle in radians into [0, 2π).
func WrapAngle(theta float32) float32 {
	theta = math32.Mod(theta, TwoPi)
	if theta < 0 {
		theta += TwoPi
	}
	return theta
}

// LowPassAlpha returns the single-pole IIR coefficient for a cutoff of
// bandwidthHz sampled at sampleHz. Out-of-range inputs give a pass-through filter.
func LowPassAlpha(bandwidthHz, sampleHz float32) float32 {
	if bandwidthHz <= 0 || sampleHz <= 0 {
		return 1
	}
	dt := 1 / sampleHz
	rc := 1 / (TwoPi * bandwidthHz)
	return Clamp(dt/(rc+dt), 0, 1)
}

// ClampMagnitude scales (x, y) so that x²+y² does not exceed limitSq,
// preserving direction. A non-positive limit leaves the vector untouched.
// NaN components count as zero and infinite ones keep only their sign.
func ClampMagnitude(x, y, limitSq float32) (float32, float32) {
	if !(limitSq > 0) {
		return x, y
	}
	if math32.IsNaN(x) {
		x = 0
	}
	if math32.IsNaN(y) {
		y = 0
	}
	m := math32.Max(math32.Abs(x), math32.Abs(y))
	if m == 0 {
		return x, y
	}
	limit := math32.Sqrt(limitSq)
	if math32.IsInf(m, 0) {
		x, y = infSign(x), infSign(y)
		h := math32.Sqrt(x*x + y*y)
		return limit * x / h, limit * y / h
	}
	// normalise first so the squares cannot overflow
	nx, ny := x/m, y/m
	h := math32.Sqrt(nx*nx + ny*ny)
	if m*h <= limit {
		return x, y
	}
	return limit * nx / h, limit * ny / h
}

func infSign(v float32) float32 {
	switch {
	case math32.IsInf(v, 1):
		return 1
	case math32.IsInf(v, -1):
		return -1
	}
	return 0
}

// SinCos returns sin and cos of theta.
func SinCos(theta float32) (float32, float32) {
	return math32.Sin(theta), math32.Cos(theta)
}

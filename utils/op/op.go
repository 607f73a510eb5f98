// Package op provides extended Gorgonia graph operations.
//
// Min, Max, and Clip are built from rectifiers so that they have
// gradients everywhere that Gorgonia can differentiate.
package op

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// Clip clips the value of a node element-wise to [min, max]
//
//	clip(x) = min + relu(x - min) - relu(x - max)
func Clip(value *G.Node, min, max float64) (retVal *G.Node, err error) {
	minNode := G.NewConstant(min)
	maxNode := G.NewConstant(max)

	aboveMin, err := G.Sub(value, minNode)
	if err != nil {
		return nil, err
	}
	if aboveMin, err = G.Rectify(aboveMin); err != nil {
		return nil, err
	}

	aboveMax, err := G.Sub(value, maxNode)
	if err != nil {
		return nil, err
	}
	if aboveMax, err = G.Rectify(aboveMax); err != nil {
		return nil, err
	}

	if retVal, err = G.Sub(aboveMin, aboveMax); err != nil {
		return nil, err
	}
	return G.Add(retVal, minNode)
}

// Min returns the element-wise min value between the nodes
//
//	min(a, b) = a - relu(a - b)
func Min(a *G.Node, b *G.Node) (retVal *G.Node, err error) {
	diff, err := G.Sub(a, b)
	if err != nil {
		return nil, err
	}
	if diff, err = G.Rectify(diff); err != nil {
		return nil, err
	}
	return G.Sub(a, diff)
}

// Max returns the element-wise max value between the nodes
//
//	max(a, b) = a + relu(b - a)
func Max(a *G.Node, b *G.Node) (retVal *G.Node, err error) {
	diff, err := G.Sub(b, a)
	if err != nil {
		return nil, err
	}
	if diff, err = G.Rectify(diff); err != nil {
		return nil, err
	}
	return G.Add(a, diff)
}

// GaussianLogPdf calculate the log of the probability density function
// of actions drawn from a diagonal Gaussian distribution with mean mean
// and standard deviation std.
//
// All arguments should be two-dimensional and of the same size m x n.
// For each argument, the rows (m) denote the number of samples in the
// batch. For the mean and std, the columns (n) denote the main diagonal
// of the mean or standard deviation respectively in the diagonal
// Gaussian, for which the PDF of actions is calculated. For the actions
// parameter, the columns denote each dimension of the actions.
//
// The returned node is a vector of m log probabilities.
func GaussianLogPdf(mean, std, actions *G.Node) *G.Node {
	graph := mean.Graph()
	if graph != std.Graph() || graph != actions.Graph() {
		panic("gaussianLogPdf: all nodes must share the same graph")
	}

	negativeHalf := G.NewConstant(-0.5)
	logSqrt2Pi := G.NewConstant(0.5 * math.Log(2*math.Pi))

	// -1/2 ((a - μ) / σ)²
	exponent := G.Must(G.Sub(actions, mean))
	exponent = G.Must(G.HadamardDiv(exponent, std))
	exponent = G.Must(G.Square(exponent))
	exponent = G.Must(G.HadamardProd(negativeHalf, exponent))

	// log σ + log √(2π)
	terms := G.Must(G.Log(std))
	terms = G.Must(G.Add(terms, logSqrt2Pi))

	logProb := G.Must(G.Sub(exponent, terms))
	return G.Must(G.Sum(logProb, 1))
}

// GaussianEntropy returns a vector holding the entropy of each row of
// a batch of diagonal Gaussian distributions with standard deviation
// std.
func GaussianEntropy(std *G.Node) *G.Node {
	offset := G.NewConstant(0.5 + 0.5*math.Log(2*math.Pi))

	entropy := G.Must(G.Log(std))
	entropy = G.Must(G.Add(entropy, offset))
	return G.Must(G.Sum(entropy, 1))
}

// GaussianKL returns a vector holding KL(p ‖ q) for each row of a
// batch of diagonal Gaussian distributions p and q
//
//	KL(p ‖ q) = Σ log σq - log σp + (σp² + (μp - μq)²) / 2σq² - 1/2
func GaussianKL(pMean, pStd, qMean, qStd *G.Node) *G.Node {
	half := G.NewConstant(0.5)
	two := G.NewConstant(2.0)

	logRatio := G.Must(G.Sub(G.Must(G.Log(qStd)), G.Must(G.Log(pStd))))

	diff := G.Must(G.Sub(pMean, qMean))
	num := G.Must(G.Add(G.Must(G.Square(pStd)), G.Must(G.Square(diff))))
	den := G.Must(G.HadamardProd(two, G.Must(G.Square(qStd))))

	kl := G.Must(G.Add(logRatio, G.Must(G.HadamardDiv(num, den))))
	kl = G.Must(G.Sub(kl, half))
	return G.Must(G.Sum(kl, 1))
}

// GaussianL2 returns a vector holding the squared Euclidean distance
// between the parameters (μ, log σ) of each row of a batch of diagonal
// Gaussian distributions p and q
func GaussianL2(pMean, pStd, qMean, qStd *G.Node) *G.Node {
	meanDiff := G.Must(G.Square(G.Must(G.Sub(pMean, qMean))))

	logStdDiff := G.Must(G.Sub(G.Must(G.Log(pStd)), G.Must(G.Log(qStd))))
	logStdDiff = G.Must(G.Square(logStdDiff))

	dist := G.Must(G.Add(meanDiff, logStdDiff))
	return G.Must(G.Sum(dist, 1))
}

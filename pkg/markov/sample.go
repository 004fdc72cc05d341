package markov

import (
	"math"
	"slices"
)

// Rand is the randomness a walk draws from. Both *prng.State and
// *prng.SplitMix satisfy it.
type Rand interface {
	// IntN returns a value in [0, n). n is always positive.
	IntN(n int) int
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	maxLength   int
	temperature float64
	topK        int
}

func defaultGenerateOptions() generateOptions {
	return generateOptions{
		maxLength:   100,
		temperature: 1.0,
	}
}

// GenerateOption is a function that configures generation parameters. It is
// accepted by Chain.Generate and Chain.NewCursor.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the maximum number of tokens in one chain. A walk that
// reaches it ends as if EOC had been drawn. Values below 1 are ignored.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) {
		if n > 0 {
			o.maxLength = n
		}
	}
}

// WithTemperature adjusts the randomness of the token selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent tokens more likely).
// Values < 1.0 decrease randomness (making more frequent tokens even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent token).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the token selection pool to the top `k` most frequent tokens
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// chooseNextToken picks one of choices, weighted by frequency. choices is
// shared by every walker of a Chain and must not be modified; it is sorted
// by token id, which keeps the pick for a given rng stream stable.
func chooseNextToken(choices []ChainToken, totalFreq int, options *generateOptions, rng Rand) int {
	if options.topK > 0 && options.topK < len(choices) {
		top := slices.Clone(choices)
		slices.SortStableFunc(top, func(a, b ChainToken) int {
			return b.Freq - a.Freq
		})
		choices = top[:options.topK]
		totalFreq = 0
		for _, choice := range choices {
			totalFreq += choice.Freq
		}
	}

	switch {
	case options.temperature <= 0:
		nextToken, maxFreq := choices[0].Id, choices[0].Freq
		for _, choice := range choices[1:] {
			if choice.Freq > maxFreq {
				maxFreq = choice.Freq
				nextToken = choice.Id
			}
		}
		return nextToken

	case options.temperature == 1.0:
		randChoice := rng.IntN(totalFreq)
		for _, choice := range choices {
			randChoice -= choice.Freq
			if randChoice < 0 {
				return choice.Id
			}
		}

	default:
		// Weights are exp(log(freq)/T), shifted by the largest exponent so
		// they stay finite.
		maxLog := math.Inf(-1)
		weights := make([]float64, len(choices))
		for i, choice := range choices {
			weights[i] = math.Log(float64(choice.Freq)) / options.temperature
			maxLog = max(maxLog, weights[i])
		}
		var totalWeight float64
		for i := range weights {
			weights[i] = math.Exp(weights[i] - maxLog)
			totalWeight += weights[i]
		}
		randChoice := rng.Float64() * totalWeight
		for i, choice := range choices {
			randChoice -= weights[i]
			if randChoice < 0 {
				return choice.Id
			}
		}
	}
	// Rounding can leave a sliver past the last weight.
	return choices[len(choices)-1].Id
}

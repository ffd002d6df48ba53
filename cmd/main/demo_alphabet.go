package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tilecraft/markovgen/pkg/markov"
)

// runAlphabet trains a first-order chain on the alphabet's 25 transitions
// and walks it from 'a'. Every context has exactly one successor, so the
// walk reproduces the alphabet and dead-ends after 'z'.
func runAlphabet(_ *Config, logger *slog.Logger) (*markov.Chain[rune], error) {
	chain, err := markov.New[rune](1, nil)
	if err != nil {
		return nil, err
	}
	chain.SetLogger(logger)

	alpha := []rune("abcdefghijklmnopqrstuvwxyz")
	for i := 1; i < len(alpha); i++ {
		if err := chain.Train([]rune{alpha[i-1]}, alpha[i], 1); err != nil {
			return nil, err
		}
	}

	var sb strings.Builder
	last := 'a'
	for {
		sb.WriteRune(last)
		next, ok, err := chain.Generate([]rune{last})
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		sb.WriteRune(' ')
		last = next
	}
	fmt.Println(sb.String())

	pYZ, err := chain.Probability([]markov.Slot[rune]{markov.Known('y')}, 'z')
	if err != nil {
		return nil, err
	}
	pAZ, err := chain.Probability([]markov.Slot[rune]{markov.Known('a')}, 'z')
	if err != nil {
		return nil, err
	}
	fmt.Printf("p(z|y) = %v, p(z|a) = %v\n", pYZ, pAZ)

	return chain, nil
}

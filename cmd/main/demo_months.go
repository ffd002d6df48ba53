package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tilecraft/markovgen/pkg/markov"
)

// Month names from a spread of calendars; one per line. The space rune
// terminates every name so generation knows where a word ends.
const monthCorpus = `january february march april may june july august
september october november december nisan iyar sivan tammuz av elul
tishri marcheshvan kislev tevet shevat adar muharram safar rajab shaban
ramadan shawwal caitra vaikasi jyestha ashada sravana bhadrapada asvina
kartika maargazhi pausa magha chet vaisakh jeth harth sawan bhadon assu
katak maghar poh magh phagun gormanuour ylir morsugur porri goa
einmanuour harpa skerpla solmanuour heyannir tvimanuour haustmanuour
thout paopi hathor koiak tooba emshir paremhat paremoude pashons paoni
epip mesori vendemiarie brumaire frimaire nivose pluviose ventose
germinal floreal prairial messidor thermidor fructidor`

// runMonths trains a first-order letter chain on month names and
// generates new ones. Slot 0 is a wildcard dimension, so the first letter
// of each generated name is drawn from the marginal over every trained
// transition.
func runMonths(config *Config, logger *slog.Logger) (*markov.Chain[rune], error) {
	chain, err := markov.New[rune](1, []int{0})
	if err != nil {
		return nil, err
	}
	chain.SetLogger(logger)

	for _, word := range strings.Fields(monthCorpus) {
		runes := []rune(word)
		for i := 1; i < len(runes); i++ {
			if err := chain.Train([]rune{runes[i-1]}, runes[i], 1); err != nil {
				return nil, err
			}
		}
		if err := chain.Train([]rune{runes[len(runes)-1]}, ' ', 1); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, config.MonthCount)
	for len(names) < config.MonthCount {
		var sb strings.Builder
		next, ok, err := chain.GenerateFromPartial([]markov.Slot[rune]{markov.Unknown[rune]()})
		if err != nil {
			return nil, err
		}
		for ok && next != ' ' && sb.Len() < config.MaxWordLen {
			sb.WriteRune(next)
			next, ok, err = chain.Generate([]rune{next})
			if err != nil {
				return nil, err
			}
		}
		// Too-short names read as noise; roll again.
		if sb.Len() < 3 {
			continue
		}
		names = append(names, sb.String())
	}
	fmt.Println(strings.Join(names, " "))

	return chain, nil
}

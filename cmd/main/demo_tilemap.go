package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tilecraft/markovgen/pkg/markov"
)

// Training map for the tile demo. Each cell's context is its NW, N and W
// neighbors, which is enough to learn how box-drawing strokes connect.
const tileCorpus = `
 ┏━━━━┳━━━━━━┓ ┏━┳━━┳━━━━━━━━━━┓
 ┃    ┃ ┏━┓  ┃ ┃ ┃  ┃          ┃
 ┣━━━━╋━╋━╋━━╋━┫ ┃ ┏╋━━━━┓     ┃
 ┃    ┃ ┗━┛  ┃ ┃ ┃ ┗╋━━━━┛     ┃
 ┗━━━━┻━━━━━━┛ ┗━┻━━┻━━━━━━━━━━┛
                                 `

// runTilemap trains a third-order chain on the tile corpus and collapses
// a fresh grid cell by cell, in reading order. All three context slots
// are wildcard dimensions so border cells with out-of-bounds neighbors
// can still resolve. A dead end abandons the grid and retries the whole
// fill, which is the caller's job, not the engine's.
func runTilemap(config *Config, logger *slog.Logger) (*markov.Chain[rune], error) {
	chain, err := markov.New[rune](3, []int{0, 1, 2})
	if err != nil {
		return nil, err
	}
	chain.SetLogger(logger)

	var grid [][]rune
	for _, line := range strings.Split(tileCorpus, "\n") {
		grid = append(grid, []rune(line))
	}
	for r := 1; r < len(grid); r++ {
		for c := 1; c < len(grid[r]); c++ {
			if c >= len(grid[r-1]) {
				continue
			}
			neighbors := []rune{grid[r-1][c-1], grid[r-1][c], grid[r][c-1]}
			if err := chain.Train(neighbors, grid[r][c], 1); err != nil {
				return nil, err
			}
		}
	}

	out, attempts, err := collapse(chain, config.TileWidth, config.TileHeight, config.MaxRetries)
	if err != nil {
		return nil, err
	}
	logger.Info("tilemap collapsed",
		slog.Int("width", config.TileWidth),
		slog.Int("height", config.TileHeight),
		slog.Int("attempts", attempts),
	)
	for _, row := range out {
		fmt.Println(string(row))
	}

	return chain, nil
}

// collapse fills a width x height grid from the chain, restarting the
// whole fill on a dead end. It returns the grid and the number of
// attempts used.
func collapse(chain *markov.Chain[rune], width, height, maxRetries int) ([][]rune, int, error) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		out := make([][]rune, height)
		for r := range out {
			out[r] = make([]rune, width)
		}

		ok := true
	fill:
		for r := 0; r < height; r++ {
			for c := 0; c < width; c++ {
				view := []markov.Slot[rune]{
					neighborSlot(out, r-1, c-1),
					neighborSlot(out, r-1, c),
					neighborSlot(out, r, c-1),
				}
				tile, found, err := chain.GenerateFromPartial(view)
				if err != nil {
					return nil, attempt, err
				}
				if !found {
					ok = false
					break fill
				}
				out[r][c] = tile
			}
		}
		if ok {
			return out, attempt, nil
		}
	}
	return nil, maxRetries, fmt.Errorf("no consistent tilemap after %d attempts", maxRetries)
}

func neighborSlot(out [][]rune, r, c int) markov.Slot[rune] {
	if r < 0 || c < 0 {
		return markov.Unknown[rune]()
	}
	return markov.Known(out[r][c])
}

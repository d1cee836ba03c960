package tickers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"ChainWatch/internal/domain/models"
)

// FileSource reads the tracked universe from a plain text file: one ticker
// per line, optionally "TICKER,EXCHANGE". Blank lines and # comments are
// ignored. The file is re-read on every call so the universe can change
// between runs without a restart.
type FileSource struct {
	path string
}

// NewFileSource creates a file-backed ticker source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Universe(ctx context.Context) ([]models.Symbol, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ticker file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var out []models.Symbol

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ticker, exchange := line, ""
		if i := strings.IndexByte(line, ','); i >= 0 {
			ticker = strings.TrimSpace(line[:i])
			exchange = strings.TrimSpace(line[i+1:])
		}
		ticker = normalize(ticker)
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true

		out = append(out, models.Symbol{Ticker: ticker, Exchange: exchange, Active: true})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ticker file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ticker file %s holds no symbols", s.path)
	}

	return out, nil
}

// normalize uppercases a ticker and rewrites share-class dots to the
// dash form providers expect (BRK.B -> BRK-B).
func normalize(tk string) string {
	tk = strings.ToUpper(strings.TrimSpace(tk))
	return strings.ReplaceAll(tk, ".", "-")
}

// StaticSource serves a fixed universe, for configs that list tickers
// inline.
type StaticSource struct {
	symbols []models.Symbol
}

// NewStaticSource creates a fixed ticker source.
func NewStaticSource(tickers []string) *StaticSource {
	symbols := make([]models.Symbol, 0, len(tickers))
	seen := make(map[string]bool)
	for _, tk := range tickers {
		tk = normalize(tk)
		if tk == "" || seen[tk] {
			continue
		}
		seen[tk] = true
		symbols = append(symbols, models.Symbol{Ticker: tk, Active: true})
	}
	return &StaticSource{symbols: symbols}
}

func (s *StaticSource) Universe(ctx context.Context) ([]models.Symbol, error) {
	if len(s.symbols) == 0 {
		return nil, fmt.Errorf("no tickers configured")
	}
	return s.symbols, nil
}

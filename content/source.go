// Package content supplies candidate items for autoposting. A source may
// legitimately have nothing to offer; that is a silent skip for the caller,
// not an error.
package content

import (
	"context"
	"math/rand"
)

// Item is one candidate piece of content.
type Item struct {
	Title  string
	URL    string
	Source string
}

// Source yields the next candidate item. Returning (nil, nil) means no
// candidate is available right now.
type Source interface {
	Next(ctx context.Context) (*Item, error)
}

// Static serves from a fixed list of lines, picking at random.
type Static struct {
	Name  string
	Lines []string
}

func (s *Static) Next(ctx context.Context) (*Item, error) {
	if len(s.Lines) == 0 {
		return nil, nil
	}
	//nolint:gosec // G404: math/rand is sufficient for content rotation, not used for security
	line := s.Lines[rand.Intn(len(s.Lines))]
	return &Item{Title: line, Source: s.Name}, nil
}

// Multi tries each source in a random order and returns the first candidate.
// Sources that error are skipped; the error is surfaced only when every
// source fails or comes up empty.
type Multi struct {
	Sources []Source
}

func (m *Multi) Next(ctx context.Context) (*Item, error) {
	if len(m.Sources) == 0 {
		return nil, nil
	}
	var lastErr error
	//nolint:gosec // G404: math/rand is sufficient for source rotation, not used for security
	for _, i := range rand.Perm(len(m.Sources)) {
		item, err := m.Sources[i].Next(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if item != nil {
			return item, nil
		}
	}
	return nil, lastErr
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package httpapi

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// originMatcher allows browser origins that match any configured glob.
// A '*' matches within one host label, so "https://*.example.com" admits
// "https://app.example.com" but not "https://a.b.example.com".
type originMatcher struct {
	patterns []glob.Glob
}

func newOriginMatcher(patterns []string) (*originMatcher, error) {
	m := &originMatcher{patterns: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.Code("CORS_PATTERN_INVALID").With("pattern", p).Wrap(err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Allow has the signature echo's CORS middleware expects for AllowOriginFunc.
func (m *originMatcher) Allow(origin string) (bool, error) {
	for _, g := range m.patterns {
		if g.Match(origin) {
			return true, nil
		}
	}
	return false, nil
}

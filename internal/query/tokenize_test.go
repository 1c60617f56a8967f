package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	cases := map[string]struct {
		in   string
		want []string
	}{
		"and connective":     {in: "cat and dog", want: []string{"cat", "dog"}},
		"comma separated":    {in: "cat, dog", want: []string{"cat", "dog"}},
		"or connective":      {in: "cat or dog", want: []string{"cat", "dog"}},
		"standalone comma":   {in: "cat , dog", want: []string{"cat", "dog"}},
		"case insensitive":   {in: "Cat AND Dog Or bird", want: []string{"Cat", "Dog", "bird"}},
		"single keyword":     {in: "cat", want: []string{"cat"}},
		"extra whitespace":   {in: "  cat\tand \n dog  ", want: []string{"cat", "dog"}},
		"only connectives":   {in: "and or ,", want: []string{}},
		"empty":              {in: "", want: []string{}},
		"words containing":   {in: "sandy orange", want: []string{"sandy", "orange"}},
		"full width letters": {in: "ｃａｔ　ａｎｄ　ｄｏｇ", want: []string{"cat", "dog"}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Tokenize(tc.in))
		})
	}
}

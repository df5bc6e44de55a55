// Package hostlist parses and renders the bracketed hostname range
// syntax used to name sets of bootstrap-tree peers (e.g.
// "node[01-03,05]"), grounded on original_source's
// src/common/libhostlist/hostlist.c. It keeps that file's core
// grammar — a prefix, a comma-separated list of bracketed ranges or
// single indices, zero-padded width tracking — but drops the original's
// iterator/refcount API in favor of plain slices, which is all the
// bootstrap tree needs.
package hostlist

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// HostList is an ordered, possibly-duplicated list of hostnames.
type HostList []string

// Parse expands a bracketed hostlist expression, e.g. "node[1-3,5]" or
// "a,b,c[01-02]", into its constituent hostnames in list order.
func Parse(expr string) (HostList, error) {
	var out HostList
	for _, term := range splitTopLevel(expr) {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		expanded, err := expandTerm(term)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// splitTopLevel splits expr on commas that are not inside a bracket
// pair, since ranges themselves are comma-separated.
func splitTopLevel(expr string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, expr[start:])
	return parts
}

func expandTerm(term string) (HostList, error) {
	open := strings.IndexByte(term, '[')
	if open < 0 {
		return HostList{term}, nil
	}
	if !strings.HasSuffix(term, "]") {
		return nil, ferror.New(ferror.Inval, "unterminated bracket in %q", term)
	}
	prefix := term[:open]
	body := term[open+1 : len(term)-1]

	var out HostList
	for _, rng := range strings.Split(body, ",") {
		rng = strings.TrimSpace(rng)
		if rng == "" {
			continue
		}
		lo, hi, width, err := parseRange(rng)
		if err != nil {
			return nil, err
		}
		for n := lo; n <= hi; n++ {
			out = append(out, fmt.Sprintf("%s%0*d", prefix, width, n))
		}
	}
	return out, nil
}

func parseRange(rng string) (lo, hi, width int, err error) {
	dash := strings.IndexByte(rng, '-')
	if dash < 0 {
		n, perr := strconv.Atoi(rng)
		if perr != nil {
			return 0, 0, 0, ferror.Wrap(ferror.Inval, perr, "invalid hostlist index %q", rng)
		}
		return n, n, len(rng), nil
	}
	loStr, hiStr := rng[:dash], rng[dash+1:]
	lo, err = strconv.Atoi(loStr)
	if err != nil {
		return 0, 0, 0, ferror.Wrap(ferror.Inval, err, "invalid range start %q", loStr)
	}
	hi, err = strconv.Atoi(hiStr)
	if err != nil {
		return 0, 0, 0, ferror.Wrap(ferror.Inval, err, "invalid range end %q", hiStr)
	}
	if lo > hi {
		return 0, 0, 0, ferror.New(ferror.Inval, "range %q has lo > hi", rng)
	}
	w := len(loStr)
	if len(hiStr) > w {
		w = len(hiStr)
	}
	return lo, hi, w, nil
}

// hostSplit separates a hostname into (prefix, numeric suffix, width),
// where width is the zero-padded digit count of the numeric suffix
// (0 if the hostname has none), following
// hostname_suffix_width/hostname_split in the original.
func hostSplit(host string) (prefix string, n int, width int, hasSuffix bool) {
	i := len(host)
	for i > 0 && host[i-1] >= '0' && host[i-1] <= '9' {
		i--
	}
	if i == len(host) {
		return host, 0, 0, false
	}
	suffix := host[i:]
	val, err := strconv.Atoi(suffix)
	if err != nil {
		return host, 0, 0, false
	}
	return host[:i], val, len(suffix), true
}

// Compress collapses a list of hostnames sharing a prefix into the
// bracketed range syntax Parse understands, coalescing contiguous runs
// the way hostlist_coalesce does.
func Compress(hosts HostList) string {
	type bucket struct {
		prefix string
		width  int
		nums   []int
	}
	order := []string{}
	buckets := map[string]*bucket{}
	var bare []string

	for _, h := range hosts {
		prefix, n, width, ok := hostSplit(h)
		if !ok {
			bare = append(bare, h)
			continue
		}
		key := fmt.Sprintf("%s\x00%d", prefix, width)
		b, exists := buckets[key]
		if !exists {
			b = &bucket{prefix: prefix, width: width}
			buckets[key] = b
			order = append(order, key)
		}
		b.nums = append(b.nums, n)
	}

	var terms []string
	for _, key := range order {
		b := buckets[key]
		sort.Ints(b.nums)
		terms = append(terms, fmt.Sprintf("%s[%s]", b.prefix, collapseRanges(b.nums, b.width)))
	}
	terms = append(terms, bare...)
	return strings.Join(terms, ",")
}

func collapseRanges(nums []int, width int) string {
	var parts []string
	i := 0
	for i < len(nums) {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, fmt.Sprintf("%0*d", width, nums[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%0*d-%0*d", width, nums[i], width, nums[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// Nth returns the host at list-order index n, the way rank-to-hostname
// lookups are done across a bootstrap tree.
func (h HostList) Nth(n int) (string, bool) {
	if n < 0 || n >= len(h) {
		return "", false
	}
	return h[n], true
}

// Count returns the number of hostnames in the list.
func (h HostList) Count() int { return len(h) }

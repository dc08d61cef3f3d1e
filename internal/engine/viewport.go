package engine

import "sort"

// LoaderConfig configures the Viewport Loader.
type LoaderConfig struct {
	Enabled       bool
	PreloadOffset int
	InitialEager  int
	// PlaceholderHeight is the fixed height, in px, of an unmounted block.
	PlaceholderHeight int
}

var DefaultLoaderConfig = LoaderConfig{
	Enabled:           true,
	PreloadOffset:     2,
	InitialEager:      3,
	PlaceholderHeight: 240,
}

// Loader tracks which block positions are mounted. The set only grows.
type Loader struct {
	cfg     LoaderConfig
	total   int
	mounted map[int]struct{}
}

func NewLoader(total int, cfg LoaderConfig) *Loader {
	l := &Loader{
		cfg:     cfg,
		total:   total,
		mounted: make(map[int]struct{}, total),
	}
	eager := cfg.InitialEager
	if !cfg.Enabled {
		eager = total
	}
	for i := 0; i < eager && i < total; i++ {
		l.mounted[i] = struct{}{}
	}
	return l
}

// Enter reports that position i is within the viewport. It mounts i and the
// look-ahead window after it, returning the newly mounted positions.
func (l *Loader) Enter(i int) []int {
	if i < 0 || i >= l.total {
		return nil
	}
	var added []int
	for j := i; j <= i+l.cfg.PreloadOffset && j < l.total; j++ {
		if _, ok := l.mounted[j]; ok {
			continue
		}
		l.mounted[j] = struct{}{}
		added = append(added, j)
	}
	return added
}

func (l *Loader) Mounted(i int) bool {
	_, ok := l.mounted[i]
	return ok
}

// Visible returns mounted positions in ascending order.
func (l *Loader) Visible() []int {
	out := make([]int, 0, len(l.mounted))
	for i := range l.mounted {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Placeholder stands in for a block that is not yet mounted.
type Placeholder struct {
	Height int `json:"height"`
}

func (l *Loader) placeholder() *Placeholder {
	return &Placeholder{Height: l.cfg.PlaceholderHeight}
}

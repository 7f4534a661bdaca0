package datasets

import (
	"strings"

	"github.com/pkg/errors"
)

// Split is the partition a sequence belongs to.
type Split int

const (
	Skip Split = iota
	Train
	Val
)

func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Val:
		return "val"
	default:
		return "skip"
	}
}

// ParseSplit parses "train", "val" or "skip".
func ParseSplit(s string) (Split, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "train":
		return Train, nil
	case "val":
		return Val, nil
	case "skip":
		return Skip, nil
	}
	return Skip, errors.Errorf("unknown split %q", s)
}

// Partition assigns every sequence to exactly one split. Skip wins over val,
// val over train; sequences listed nowhere go to Unlisted.
type Partition struct {
	Train    map[string]bool
	Val      map[string]bool
	Skip     map[string]bool
	Unlisted Split
}

// NewPartition builds a Partition from name lists.
func NewPartition(train, val, skip []string, unlisted Split) *Partition {
	set := func(names []string) map[string]bool {
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[n] = true
		}
		return m
	}
	return &Partition{Train: set(train), Val: set(val), Skip: set(skip), Unlisted: unlisted}
}

// Assign returns the split of sequence.
func (p *Partition) Assign(sequence string) Split {
	switch {
	case p.Skip[sequence]:
		return Skip
	case p.Val[sequence]:
		return Val
	case p.Train[sequence]:
		return Train
	}
	return p.Unlisted
}

// Validate rejects sequences listed in both train and val.
func (p *Partition) Validate() error {
	for name := range p.Train {
		if p.Val[name] && !p.Skip[name] {
			return errors.Errorf("sequence %q is in both train and val", name)
		}
	}
	return nil
}

package datasets

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Noofbiz/contourgraph/backbone"
	"github.com/Noofbiz/contourgraph/features"
	"github.com/cyclopcam/logs"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrWeightsMissing means the backbone weights of a sequence are still
	// absent after online training ran.
	ErrWeightsMissing = errors.New("backbone weights missing after online training")
	// ErrNoTrainer means weights are missing and no Trainer is configured.
	ErrNoTrainer = errors.New("backbone weights missing and no online trainer configured")
	// ErrIndexOutOfRange is returned by Get for indices outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")
)

// SequencePlaceholder is replaced by the sequence name in weights patterns.
const SequencePlaceholder = "{sequence}"

// ExtractorLoader builds a feature extractor from a weights file. If the
// returned extractor implements io.Closer it is closed once its sequence is
// done.
type ExtractorLoader func(fs afero.Fs, weightsPath string) (features.Extractor, error)

// BackboneLoader loads gomlx backbones truncated to depth on device.
func BackboneLoader(depth int, device string) ExtractorLoader {
	return func(fs afero.Fs, path string) (features.Extractor, error) {
		return backbone.Load(fs, path, backbone.Options{Depth: depth, Device: device})
	}
}

// Options configures a GraphDataset.
type Options struct {
	Layout    *Layout
	Store     *Store
	Partition *Partition
	// Split selects the view: Train or Val.
	Split Split

	K      int
	Mapper features.Mapper

	// Fs holds the backbone weights. WeightsPattern names the weights file
	// of a sequence inside WeightsDir, with SequencePlaceholder for the name.
	Fs             afero.Fs
	WeightsDir     string
	WeightsPattern string
	Trainer        Trainer
	LoadExtractor  ExtractorLoader

	// Workers > 1 processes that many sequences concurrently.
	Workers int
	// Force rebuilds samples that already exist or were filtered out.
	Force bool

	// PreFilter drops a sample before it is persisted when it returns false.
	PreFilter func(*GraphSample) bool
	// PreTransform rewrites a sample before it is persisted.
	PreTransform func(*GraphSample) *GraphSample
	// Transform rewrites a sample every time it is read.
	Transform func(*GraphSample) *GraphSample
}

// Entry is one (sequence, frame) pair of the dataset. Next is the frame whose
// image supplies the second half of the node features.
type Entry struct {
	Sequence string
	Frame    Frame
	Next     Frame
}

// Key is the store key of the entry.
func (e Entry) Key() string { return Key(e.Sequence, e.Frame.ID) }

// GraphDataset materializes and serves the graph samples of one split.
//
// Sequences go through: backbone weights ready (online training if needed),
// samples materialized for every frame that has a successor, indexed. The
// index only lists samples present in the store, so an interrupted Process
// leaves a consistent, smaller dataset that a later Process completes.
type GraphDataset struct {
	log  logs.Log
	opts Options

	mu    sync.Mutex
	index []Entry
	pos   int
}

var _ Dataset = (*GraphDataset)(nil)

// NewGraphDataset creates the dataset and indexes the samples already on disk.
func NewGraphDataset(log logs.Log, opts Options) (*GraphDataset, error) {
	switch {
	case opts.Layout == nil:
		return nil, errors.New("dataset: layout is required")
	case opts.Store == nil:
		return nil, errors.New("dataset: store is required")
	case opts.Partition == nil:
		return nil, errors.New("dataset: partition is required")
	case opts.Split != Train && opts.Split != Val:
		return nil, errors.Errorf("dataset: split must be train or val, got %v", opts.Split)
	case opts.K < 1:
		return nil, errors.Errorf("dataset: k must be >= 1, got %d", opts.K)
	}
	if err := opts.Partition.Validate(); err != nil {
		return nil, err
	}
	if opts.Fs == nil {
		opts.Fs = opts.Layout.Fs
	}
	if opts.WeightsPattern == "" {
		opts.WeightsPattern = SequencePlaceholder + ".gob"
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	d := &GraphDataset{log: log, opts: opts}
	if err := d.Refresh(); err != nil {
		return nil, err
	}
	return d, nil
}

// Entries enumerates the (sequence, frame) pairs of the split from the raw
// inputs: sequences in lexical order, frames in file name order, the last
// frame of every sequence left out.
func (d *GraphDataset) Entries() ([]Entry, error) {
	seqs, err := d.opts.Layout.Sequences()
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, seq := range seqs {
		if d.opts.Partition.Assign(seq) != d.opts.Split {
			continue
		}
		frames, err := d.opts.Layout.Frames(seq)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(frames); i++ {
			entries = append(entries, Entry{Sequence: seq, Frame: frames[i], Next: frames[i+1]})
		}
	}
	return entries, nil
}

// Refresh rebuilds the index from the entries that are present in the store.
func (d *GraphDataset) Refresh() error {
	entries, err := d.Entries()
	if err != nil {
		return err
	}
	index := entries[:0]
	for _, e := range entries {
		ok, err := d.opts.Store.Has(e.Key())
		if err != nil {
			return err
		}
		if ok {
			index = append(index, e)
		}
	}
	d.mu.Lock()
	d.index = index
	d.pos = 0
	d.mu.Unlock()
	return nil
}

// WeightsPath returns where the backbone weights of sequence live.
func (d *GraphDataset) WeightsPath(sequence string) string {
	return filepath.Join(d.opts.WeightsDir, strings.ReplaceAll(d.opts.WeightsPattern, SequencePlaceholder, sequence))
}

// Process materializes every missing sample of the split, then refreshes the
// index. Sequences are independent; up to Options.Workers run at once.
func (d *GraphDataset) Process(ctx context.Context) error {
	entries, err := d.Entries()
	if err != nil {
		return err
	}
	var order []string
	bySeq := map[string][]Entry{}
	for _, e := range entries {
		if _, ok := bySeq[e.Sequence]; !ok {
			order = append(order, e.Sequence)
		}
		bySeq[e.Sequence] = append(bySeq[e.Sequence], e)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, seq := range order {
		d.log.Infof("#%v: %v (%v frames)", i, seq, len(bySeq[seq]))
		seqEntries := bySeq[seq]
		g.Go(func() error {
			return d.processSequence(ctx, seq, seqEntries)
		})
	}
	err = g.Wait()
	if rerr := d.Refresh(); err == nil {
		err = rerr
	}
	return err
}

func (d *GraphDataset) processSequence(ctx context.Context, seq string, entries []Entry) error {
	var pending []Entry
	for _, e := range entries {
		if !d.opts.Force {
			ok, err := d.opts.Store.Has(e.Key())
			if err != nil {
				return err
			}
			if !ok {
				if ok, err = d.opts.Store.Filtered(e.Key()); err != nil {
					return err
				}
			}
			if ok {
				continue
			}
		}
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		d.log.Infof("%v: all %v samples present", seq, len(entries))
		return nil
	}

	weights, err := d.prepareBackbone(ctx, seq)
	if err != nil {
		return err
	}
	load := d.opts.LoadExtractor
	if load == nil {
		return errors.New("dataset: no extractor loader configured")
	}
	ex, err := load(d.opts.Fs, weights)
	if err != nil {
		return errors.Wrapf(err, "%s: build feature extractor", seq)
	}
	if c, ok := ex.(io.Closer); ok {
		defer c.Close()
	}
	d.log.Infof("%v: feature extractor ready (%v)", seq, weights)

	asm := &Assembler{Fs: d.opts.Layout.Fs, Extractor: ex, Mapper: d.opts.Mapper, K: d.opts.K}
	written := 0
	var total uint64
	for j, e := range pending {
		sample, err := d.buildSample(asm, e)
		if err != nil {
			return errors.Wrapf(err, "%s/%s", seq, e.Frame.ID)
		}
		if d.opts.PreFilter != nil && !d.opts.PreFilter(sample) {
			d.log.Debugf("%v: #%v %v filtered out", seq, j, e.Frame.ID)
			if err := d.opts.Store.MarkFiltered(e.Key()); err != nil {
				return err
			}
			continue
		}
		if d.opts.PreTransform != nil {
			sample = d.opts.PreTransform(sample)
		}
		n, err := d.opts.Store.Save(e.Key(), sample)
		if err != nil {
			return errors.Wrapf(err, "%s/%s", seq, e.Frame.ID)
		}
		written++
		total += uint64(n)
		d.log.Debugf("%v: #%v %v -> %v (%v)", seq, j, e.Frame.ID, e.Key(), humanize.Bytes(uint64(n)))
	}
	d.log.Infof("%v: wrote %v samples, %v", seq, written, humanize.Bytes(total))
	return nil
}

// prepareBackbone makes sure the weights of seq exist, running online
// training when they do not.
func (d *GraphDataset) prepareBackbone(ctx context.Context, seq string) (string, error) {
	path := d.WeightsPath(seq)
	ok, err := d.exists(path)
	if err != nil || ok {
		return path, err
	}
	if d.opts.Trainer == nil {
		return "", errors.Wrapf(ErrNoTrainer, "%s: %s", seq, path)
	}
	d.log.Infof("%v: start online training", seq)
	if err := d.opts.Trainer.TrainOnline(ctx, seq); err != nil {
		return "", errors.Wrapf(err, "%s: online training", seq)
	}
	d.log.Infof("%v: finished online training", seq)
	if ok, err = d.exists(path); err != nil {
		return "", err
	} else if !ok {
		return "", errors.Wrapf(ErrWeightsMissing, "%s: %s", seq, path)
	}
	return path, nil
}

func (d *GraphDataset) exists(path string) (bool, error) {
	_, err := d.opts.Fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", path)
}

func (d *GraphDataset) buildSample(asm *Assembler, e Entry) (*GraphSample, error) {
	l := d.opts.Layout
	cm, err := LoadArray(l.Fs, l.ContourPath(e.Sequence, e.Frame))
	if err != nil {
		return nil, err
	}
	contour, err := Points(cm)
	if err != nil {
		return nil, err
	}

	var translation [][]float64
	tpath := l.TranslationPath(e.Sequence, e.Frame)
	if ok, err := afero.Exists(l.Fs, tpath); err != nil {
		return nil, err
	} else if ok {
		tm, err := LoadArray(l.Fs, tpath)
		if err != nil {
			return nil, err
		}
		translation = Rows(tm)
	}

	img0, err := l.ImagePath(e.Sequence, e.Frame)
	if err != nil {
		return nil, err
	}
	img1, err := l.ImagePath(e.Sequence, e.Next)
	if err != nil {
		return nil, err
	}
	sample, err := asm.Assemble(contour, translation, img0, img1)
	if err != nil {
		return nil, err
	}
	sample.Sequence = e.Sequence
	sample.Frame = e.Frame.ID
	return sample, nil
}

// Len returns the number of persisted samples of the split.
func (d *GraphDataset) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// Index returns a copy of the indexed entries.
func (d *GraphDataset) Index() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Entry(nil), d.index...)
}

// Key returns the store key of sample i.
func (d *GraphDataset) Key(i int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.index) {
		return "", errors.Wrapf(ErrIndexOutOfRange, "%d not in [0, %d)", i, len(d.index))
	}
	return d.index[i].Key(), nil
}

// Get loads sample i.
func (d *GraphDataset) Get(i int) (*GraphSample, error) {
	key, err := d.Key(i)
	if err != nil {
		return nil, err
	}
	sample, err := d.opts.Store.Load(key)
	if err != nil {
		return nil, err
	}
	if d.opts.Transform != nil {
		sample = d.opts.Transform(sample)
	}
	return sample, nil
}

// Name implements gomlx's train.Dataset.
func (d *GraphDataset) Name() string {
	return "contour-graphs-" + d.opts.Split.String()
}

// Yield returns the next sample as tensors, one graph per batch. The first
// value returned is the *GraphSample itself. io.EOF marks the end of an epoch.
func (d *GraphDataset) Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error) {
	d.mu.Lock()
	pos := d.pos
	if pos >= len(d.index) {
		d.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	d.pos++
	d.mu.Unlock()

	sample, err := d.Get(pos)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, labels := sample.Tensors()
	return sample, inputs, labels, nil
}

// Reset restarts Yield from the first sample.
func (d *GraphDataset) Reset() {
	d.mu.Lock()
	d.pos = 0
	d.mu.Unlock()
}

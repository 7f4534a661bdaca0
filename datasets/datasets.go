package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package builds per-frame contour graph datasets from three parallel
// raw trees (contours, images, translations) and serves them back.
//
// Write path (GraphDataset.Process):
//   - enumerate sequences and frames (Layout), keep those of the split
//     (Partition)
//   - per sequence: make sure backbone weights exist (Trainer), build a
//     feature extractor (ExtractorLoader)
//   - per frame with a successor: Assembler -> GraphSample -> Store
//
// Read path (GraphDataset.Get / Yield): index lookup, then one file decode.
// Nothing is recomputed on read.
//
// Persisted samples are plain Go values (gob, snappy framed). Converting them
// to gomlx tensors is done by GraphSample.Tensors, which is also what Yield
// feeds to gomlx training loops.

// Dataset is the read side shared by the graph datasets. It implements
// gomlx's train.Dataset so samples can be fed straight into a training loop.
type Dataset interface {
	Len() int
	Get(i int) (*GraphSample, error)

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
	Reset()
}

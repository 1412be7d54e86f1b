package features

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/raphaelgruber/escalate-go/internal/dataset"
)

// SplitOptions controls the train/validation partitioning.
type SplitOptions struct {
	TestFraction float64
	Seed         uint64
	// Stratify requests a label-stratified split. It falls back to a plain
	// shuffled split when the labels cannot support one.
	Stratify bool
}

// DefaultSplitOptions returns an unstratified 80/20 split with seed 42.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{TestFraction: 0.2, Seed: 42}
}

// SplitResult holds both partitions and the task ids behind their rows.
type SplitResult struct {
	Train         *dataset.Partition
	Validation    *dataset.Partition
	TrainIDs      []int
	ValidationIDs []int

	Stratified bool
	// FallbackReason explains why a requested stratified split was not used.
	FallbackReason string
}

// Split partitions the matrix with a seeded shuffle. The validation share
// is ceil(TestFraction * n), leaving at least one training row.
func Split(m *Matrix, opts SplitOptions) (*SplitResult, error) {
	n := len(m.Rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: nothing to split", ErrEmptyInput)
	}
	if opts.TestFraction < 0 || opts.TestFraction >= 1 {
		return nil, fmt.Errorf("test fraction %v outside [0, 1)", opts.TestFraction)
	}

	nTest := int(math.Ceil(opts.TestFraction * float64(n)))
	if nTest > n-1 {
		nTest = n - 1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, 0))
	labels := make([]int, n)
	for i, r := range m.Rows {
		labels[i] = r.Label
	}

	var trainIdx, testIdx []int
	res := &SplitResult{}
	if opts.Stratify {
		var reason string
		trainIdx, testIdx, reason = stratifiedIndices(labels, nTest, rng)
		if reason != "" {
			res.FallbackReason = reason
		} else {
			res.Stratified = true
		}
	}
	if !res.Stratified {
		perm := rng.Perm(n)
		testIdx, trainIdx = perm[:nTest], perm[nTest:]
	}

	all := m.Partition()
	res.Train = all.Subset(trainIdx)
	res.Validation = all.Subset(testIdx)
	res.TrainIDs = taskIDs(m, trainIdx)
	res.ValidationIDs = taskIDs(m, testIdx)
	return res, nil
}

func taskIDs(m *Matrix, idx []int) []int {
	ids := make([]int, len(idx))
	for i, j := range idx {
		ids[i] = m.Rows[j].TaskID
	}
	return ids
}

// stratifiedIndices allocates nTest rows across classes in proportion to
// class size. It returns a non-empty reason instead of indices when the
// labels cannot be stratified.
func stratifiedIndices(labels []int, nTest int, rng *rand.Rand) (train, test []int, reason string) {
	members := make(map[int][]int)
	for i, y := range labels {
		members[y] = append(members[y], i)
	}
	classes := make([]int, 0, len(members))
	for y := range members {
		classes = append(classes, y)
	}
	slices.Sort(classes)
	for _, y := range classes {
		if len(members[y]) < 2 {
			return nil, nil, fmt.Sprintf("class %d has a single member", y)
		}
	}

	n := len(labels)
	if nTest < len(classes) || n-nTest < len(classes) {
		return nil, nil, fmt.Sprintf("%d classes do not fit a %d/%d split", len(classes), n-nTest, nTest)
	}

	type share struct {
		class int
		take  int
		frac  float64
		room  int
	}
	shares := make([]share, len(classes))
	allocated := 0
	for i, y := range classes {
		exact := float64(len(members[y])) * float64(nTest) / float64(n)
		take := int(math.Floor(exact))
		shares[i] = share{class: y, take: take, frac: exact - float64(take), room: len(members[y]) - 1 - take}
		allocated += take
	}

	// Largest remainder first, then larger classes, then lower labels.
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(shares[b].frac, shares[a].frac); c != 0 {
			return c
		}
		return cmp.Compare(len(members[shares[b].class]), len(members[shares[a].class]))
	})
	for allocated < nTest {
		progressed := false
		for _, i := range order {
			if allocated == nTest {
				break
			}
			if shares[i].room > 0 {
				shares[i].take++
				shares[i].room--
				allocated++
				progressed = true
			}
		}
		if !progressed {
			return nil, nil, "not enough rows to fill the validation share"
		}
	}

	for _, s := range shares {
		idx := slices.Clone(members[s.class])
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:s.take]...)
		train = append(train, idx[s.take:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, ""
}

package native

import (
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Bag marks each sample of a dataset: +1 training, -1 validation, 0 unused.
// A nil Bag means every sample trains and there is no validation split.
type Bag []int8

// TrainCount returns the number of training samples.
func (b Bag) TrainCount(n int) int {
	if b == nil {
		return n
	}
	c := 0
	for _, v := range b {
		if v > 0 {
			c++
		}
	}
	return c
}

// ValidationCount returns the number of validation samples.
func (b Bag) ValidationCount() int {
	c := 0
	for _, v := range b {
		if v < 0 {
			c++
		}
	}
	return c
}

// IsTrain reports whether sample i is a training sample.
func (b Bag) IsTrain(i int) bool { return b == nil || b[i] > 0 }

// IsValidation reports whether sample i is a validation sample.
func (b Bag) IsValidation(i int) bool { return b != nil && b[i] < 0 }

// testCount converts a fractional (< 1) or absolute (>= 1) validation size.
func testCount(n int, validationSize float64) (int, error) {
	if validationSize < 0 {
		return 0, errors.NewValidationError("validation_size", "must be non-negative", validationSize)
	}
	var nTest int
	if validationSize < 1 {
		nTest = int(math.Ceil(float64(n) * validationSize))
	} else {
		if validationSize != math.Trunc(validationSize) {
			return 0, errors.NewValidationError("validation_size", "must be a whole number when >= 1", validationSize)
		}
		nTest = int(validationSize)
	}
	if nTest >= n {
		return 0, errors.NewValidationError("validation_size",
			fmt.Sprintf("leaves no training samples out of %d", n), validationSize)
	}
	return nTest, nil
}

// MakeBag splits n samples into training and validation parts.
//
// A fractional validation size is rounded up to a sample count.
//
// For classification, classes holds the class index of each sample and the
// split is stratified: every class gets at least one validation sample, and
// the validation size grows to the class count (with a warning) when it is
// smaller. Classes with more than one sample keep at least one training
// sample.
// For regression classes is nil and the split is a plain sample without
// replacement. A validation size of zero returns a nil Bag.
func (c *Context) MakeBag(n int, classes []int, validationSize float64) (Bag, error) {
	if n == 0 {
		return nil, errors.ErrEmptyData
	}
	if classes != nil && len(classes) != n {
		return nil, errors.NewDimensionError("MakeBag", n, len(classes), 0)
	}
	nTest, err := testCount(n, validationSize)
	if err != nil {
		return nil, err
	}
	if nTest == 0 {
		return nil, nil
	}

	bag := make(Bag, n)
	for i := range bag {
		bag[i] = 1
	}
	if classes == nil {
		for _, i := range c.Perm(n)[:nTest] {
			bag[i] = -1
		}
		return bag, nil
	}
	if err := c.stratify(bag, classes, nTest); err != nil {
		return nil, err
	}
	return bag, nil
}

func (c *Context) stratify(bag Bag, classes []int, nTest int) error {
	members := map[int][]int{}
	for i, k := range classes {
		members[k] = append(members[k], i)
	}
	keys := make([]int, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	n := len(classes)
	if nTest < len(keys) {
		errors.Warn(errors.NewParameterWarning("validation_size",
			"too few samples per class, adapting validation size to guarantee 1 sample per class"))
		nTest = len(keys)
		if nTest >= n {
			return errors.NewValidationError("validation_size",
				fmt.Sprintf("%d classes leave no training samples out of %d", nTest, n), nTest)
		}
	}

	// One validation sample per class first, then the rest in proportion to
	// class size by largest remainder. ceiling[j] keeps a training sample
	// whenever the class has more than one.
	alloc := make([]int, len(keys))
	ceiling := make([]int, len(keys))
	frac := make([]float64, len(keys))
	assigned := 0
	for j, k := range keys {
		size := len(members[k])
		ceiling[j] = max(size-1, 1)
		extra := math.Max(float64(size)*float64(nTest)/float64(n)-1, 0)
		alloc[j] = min(1+int(extra), ceiling[j])
		frac[j] = extra - math.Floor(extra)
		assigned += alloc[j]
	}
	order := make([]int, len(keys))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool { return frac[order[a]] > frac[order[b]] })
	// Lifting small classes to one sample can overshoot; give back from the
	// smallest remainders.
	for r := len(order) - 1; assigned > nTest; r-- {
		if r < 0 {
			r = len(order) - 1
		}
		if j := order[r]; alloc[j] > 1 {
			alloc[j]--
			assigned--
		}
	}
	for assigned < nTest {
		progressed := false
		for _, j := range order {
			if assigned == nTest {
				break
			}
			if alloc[j] < ceiling[j] {
				alloc[j]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	if assigned < nTest {
		errors.Warn(errors.NewParameterWarning("validation_size",
			"stratified split reduced so that every class keeps a training sample"))
	}

	for j, k := range keys {
		idx := members[k]
		for _, p := range c.Perm(len(idx))[:alloc[j]] {
			bag[idx[p]] = -1
		}
	}
	return nil
}

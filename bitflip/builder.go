package bitflip

import "github.com/sarchlab/hammerbed/mem/pagemap"

// Builder can build detectors.
type Builder struct {
	translator pagemap.Translator
}

// MakeBuilder creates a builder for a detector that does not translate
// addresses.
func MakeBuilder() Builder {
	return Builder{}
}

// WithTranslator sets the translator used to find the physical address of
// flipped words.
func (b Builder) WithTranslator(t pagemap.Translator) Builder {
	b.translator = t
	return b
}

// Build creates the detector.
func (b Builder) Build() *Detector {
	return &Detector{
		translator: b.translator,
		expected:   make([]uint64, chunkWords),
	}
}

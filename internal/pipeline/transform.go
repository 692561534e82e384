package pipeline

import (
	"context"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

// ReadingTransformer implements Transformer by decoding the reading JSON
// carried in each message.
type ReadingTransformer struct{}

// NewTransformer creates a ReadingTransformer.
func NewTransformer() *ReadingTransformer {
	return &ReadingTransformer{}
}

func (t *ReadingTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Reading, error) {
	return domain.ParseRawEvent(raw)
}

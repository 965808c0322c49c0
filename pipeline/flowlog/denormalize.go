package flowlog

import (
	"fmt"
	"iter"
)

// TupleError reports a tuple that could not be parsed, with enough context
// to locate it in the source document.
type TupleError struct {
	ResourceID string
	Rule       string
	MAC        string
	Tuple      string
	Err        error
}

func (e *TupleError) Error() string {
	return fmt.Sprintf("tuple in %s rule %s mac %s: %v", e.ResourceID, e.Rule, e.MAC, e.Err)
}

func (e *TupleError) Unwrap() error {
	return e.Err
}

// Flatten yields one DenormalizedRecord per flow tuple in document order:
// record, then rule, then interface, then tuple. A tuple that fails to parse
// yields a *TupleError in its position and iteration continues.
// Each call to the returned sequence starts again from the first record.
func (d *Document) Flatten() iter.Seq2[DenormalizedRecord, error] {
	return func(yield func(DenormalizedRecord, error) bool) {
		for _, rec := range d.Records {
			version := rec.Properties.Version
			for _, rule := range rec.Properties.Flows {
				for _, flow := range rule.Flows {
					for _, raw := range flow.FlowTuples {
						t, err := ParseTuple(raw, version)
						if err != nil {
							terr := &TupleError{
								ResourceID: rec.ResourceID,
								Rule:       rule.Rule,
								MAC:        flow.MAC,
								Tuple:      raw,
								Err:        err,
							}
							if !yield(DenormalizedRecord{}, terr) {
								return
							}
							continue
						}
						if !yield(NewDenormalizedRecord(rec, rule.Rule, flow.MAC, t), nil) {
							return
						}
					}
				}
			}
		}
	}
}

// Denormalize decodes a {"records":[...]} document and returns its flat records
func Denormalize(data []byte) (iter.Seq2[DenormalizedRecord, error], error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return doc.Flatten(), nil
}

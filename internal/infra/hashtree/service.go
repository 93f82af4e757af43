package hashtree

import (
	"encoding/binary"

	"veritip/internal/domain"
)

type Service struct{}

func (s *Service) RootDigest(tree []byte) ([]byte, error) {
	node, err := Decode(tree)
	if err != nil {
		return nil, err
	}
	digest := Digest(node)
	return digest[:], nil
}

// ExtractFacts resolves each requested label against the tree. Values that
// parse completely as an unsigned LEB128 integer also carry the decoded
// number. Absent labels are collected, not treated as errors.
func (s *Service) ExtractFacts(tree []byte, labels []string) ([]domain.TipFact, []string, error) {
	node, err := Decode(tree)
	if err != nil {
		return nil, nil, err
	}
	var facts []domain.TipFact
	var missing []string
	for _, label := range labels {
		value, ok := Lookup(node, []byte(label))
		if !ok {
			missing = append(missing, label)
			continue
		}
		fact := domain.TipFact{Label: label, Value: value}
		if numeric, ok := decodeUvarint(value); ok {
			n := numeric
			fact.Numeric = &n
		}
		facts = append(facts, fact)
	}
	return facts, missing, nil
}

func decodeUvarint(value []byte) (uint64, bool) {
	n, read := binary.Uvarint(value)
	if read <= 0 || read != len(value) {
		return 0, false
	}
	return n, true
}

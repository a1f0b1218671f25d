package gatt

import (
	"encoding/hex"
	"encoding/json"
)

type jsonNode struct {
	ID              string      `json:"id"`
	UUID            string      `json:"uuid"`
	Name            string      `json:"name,omitempty"`
	Value           *string     `json:"value,omitempty"`
	Characteristics []*jsonNode `json:"characteristics,omitempty"`
	Descriptors     []*jsonNode `json:"descriptors,omitempty"`
}

// MarshalJSON renders the tree as a nested list of services with hex values.
func (t *Tree) MarshalJSON() ([]byte, error) {
	services := make([]*jsonNode, 0, len(t.roots))
	for _, id := range t.roots {
		services = append(services, t.jsonNode(id))
	}
	return json.Marshal(services)
}

func (t *Tree) jsonNode(id string) *jsonNode {
	n := t.nodes[id]
	out := &jsonNode{
		ID:   n.ID,
		UUID: n.UUID,
		Name: knownName(n),
	}
	if n.Value != nil {
		v := hex.EncodeToString(n.Value)
		out.Value = &v
	}
	for _, childID := range n.children {
		child := t.jsonNode(childID)
		if n.Kind == KindService {
			out.Characteristics = append(out.Characteristics, child)
		} else {
			out.Descriptors = append(out.Descriptors, child)
		}
	}
	return out
}
